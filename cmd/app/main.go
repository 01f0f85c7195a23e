package main

import (
	"context"
	"fmt"
	"log"

	rbac "github.com/bohemiyan/projectrbac"
	"github.com/bohemiyan/projectrbac/internal/config"
	"github.com/bohemiyan/projectrbac/internal/db"
	"github.com/bohemiyan/projectrbac/internal/routes"
	"github.com/bohemiyan/projectrbac/zapLogger"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize zapLogger
	logFile, err := zapLogger.Init(cfg.LogFile)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	defer zapLogger.Log.Sync()

	defaults, err := rbac.LoadDefaultsFile(cfg.PermissionDefaultsFile)
	if err != nil {
		zapLogger.Log.Fatalf("Failed to load permission defaults: %v", err)
	}

	pgDB, err := db.NewPostgresDB(cfg)
	if err != nil {
		zapLogger.Log.Fatalf("Failed to initialize PostgreSQL: %v", err)
	}
	zapLogger.Log.Info("Successfully connected to PostgreSQL database")
	defer pgDB.Close()

	var redisDB *redis.Client
	if cfg.CacheBackend == rbac.CacheBackendRedis {
		redisDB, err = db.NewRedisClient(context.Background(), cfg)
		if err != nil {
			zapLogger.Log.Fatalf("Failed to initialize Redis: %v", err)
		}
		zapLogger.Log.Info("Successfully connected to Redis")
		defer redisDB.Close()
	}

	svc, err := rbac.NewService(rbac.Config{
		DB:                 pgDB.GormDB,
		RedisClient:        redisDB,
		CacheBackend:       cfg.CacheBackend,
		CachePrefix:        cfg.CachePrefix,
		CacheTTL:           cfg.CacheTTL,
		FlushCacheOnStart:  cfg.FlushCacheOnStart,
		AutoMigrate:        cfg.AutoMigrate,
		EnableAuditLogging: cfg.EnableAuditLogging,
		Defaults:           defaults,
		Logger:             zapLogger.Named("rbac"),
	})
	if err != nil {
		zapLogger.Log.Fatalf("Failed to initialize authorization service: %v", err)
	}

	// Set up Fiber app
	app := fiber.New(fiber.Config{ErrorHandler: routes.ErrorHandler})
	app.Use(zapLogger.FiberLoggingMiddleware(zapLogger.Named("http")))

	routes.Setup(app, svc, zapLogger.Named("routes"))

	// Start server
	addr := fmt.Sprintf(":%d", cfg.AppPort)
	zapLogger.Log.Infof("Server started on port %d (cache backend: %s)", cfg.AppPort, cfg.CacheBackend)
	if err := app.Listen(addr); err != nil {
		zapLogger.Log.Fatalf("Server stopped: %v", err)
	}
}
