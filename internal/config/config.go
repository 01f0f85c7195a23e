package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort int

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	CacheBackend      string
	CachePrefix       string
	CacheTTL          time.Duration
	FlushCacheOnStart bool

	PermissionDefaultsFile string
	AutoMigrate            bool
	EnableAuditLogging     bool
	LogFile                string
}

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() (*Config, error) {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	var err error
	cfg := &Config{
		PostgresHost:           getEnv("POSTGRES_HOST", "localhost"),
		PostgresUser:           getEnv("POSTGRES_USER", "rbac_user"),
		PostgresPassword:       getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:             getEnv("POSTGRES_DB", "rbac_db"),
		PostgresSSLMode:        getEnv("POSTGRES_SSLMODE", "disable"),
		RedisHost:              getEnv("REDIS_HOST", "localhost"),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		CacheBackend:           getEnv("CACHE_BACKEND", "memory"),
		CachePrefix:            getEnv("CACHE_PREFIX", "rbac:"),
		PermissionDefaultsFile: getEnv("PERMISSION_DEFAULTS_FILE", ""),
		LogFile:                getEnv("LOG_FILE", "app.log"),
	}

	if cfg.AppPort, err = getEnvInt("APP_PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.PostgresPort, err = getEnvInt("POSTGRES_PORT", 5432); err != nil {
		return nil, err
	}
	if cfg.RedisPort, err = getEnvInt("REDIS_PORT", 6379); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getEnvDuration("CACHE_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.FlushCacheOnStart, err = getEnvBool("FLUSH_CACHE_ON_START", true); err != nil {
		return nil, err
	}
	if cfg.AutoMigrate, err = getEnvBool("AUTO_MIGRATE", true); err != nil {
		return nil, err
	}
	if cfg.EnableAuditLogging, err = getEnvBool("ENABLE_AUDIT_LOGGING", true); err != nil {
		return nil, err
	}

	switch cfg.CacheBackend {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("CACHE_BACKEND must be memory or redis, got %q", cfg.CacheBackend)
	}
	return cfg, nil
}

// PostgresDSN returns the libpq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
