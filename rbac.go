package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config holds the configuration for the authorization service
type Config struct {
	DB                 *gorm.DB
	RedisClient        *redis.Client // required when CacheBackend is "redis"
	CacheBackend       string
	CachePrefix        string
	CacheTTL           time.Duration // 0 keeps entries until invalidated
	FlushCacheOnStart  bool
	AutoMigrate        bool
	EnableAuditLogging bool
	Defaults           *Defaults // nil means BuiltinPermissions
	Logger             *zap.SugaredLogger
}

// Service wires the engine components together. Construct it once at
// startup; every component is safe for concurrent use.
type Service struct {
	Defaults  *Defaults
	Cache     *PermissionCache
	Overrides *OverrideStore
	Members   *MembershipStore
	Evaluator *Evaluator
	Guard     *Guard
	Audit     *AuditLogger

	db  *gorm.DB
	log *zap.SugaredLogger
}

// NewService initializes the authorization service
func NewService(cfg Config) (*Service, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("%w: database is required", ErrInvalidInput)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	defaults := cfg.Defaults
	if defaults == nil {
		defaults = MustBuiltinDefaults()
	}

	if cfg.AutoMigrate {
		if err := Migrate(cfg.DB); err != nil {
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
	}

	backend, err := newCacheBackend(cfg)
	if err != nil {
		return nil, err
	}
	if rb, ok := backend.(*RedisBackend); ok && cfg.FlushCacheOnStart {
		// Entries computed under a previous defaults table must not survive a restart.
		if err := rb.ClearAll(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to flush permission cache: %w", err)
		}
	}

	cache := NewPermissionCache(backend, log)
	audit := NewAuditLogger(cfg.DB, cfg.EnableAuditLogging, log)
	overrides := NewOverrideStore(cfg.DB, cache, defaults, audit, log)
	members := NewMembershipStore(cfg.DB, defaults, log)
	evaluator := NewEvaluator(members, overrides, cache, defaults, log)

	return &Service{
		Defaults:  defaults,
		Cache:     cache,
		Overrides: overrides,
		Members:   members,
		Evaluator: evaluator,
		Guard:     NewGuard(evaluator, NewRouteTable(), log),
		Audit:     audit,
		db:        cfg.DB,
		log:       log,
	}, nil
}

func newCacheBackend(cfg Config) (CacheBackend, error) {
	switch cfg.CacheBackend {
	case "", CacheBackendMemory:
		return NewMemoryBackend(), nil
	case CacheBackendRedis:
		if cfg.RedisClient == nil {
			return nil, fmt.Errorf("%w: redis cache backend requires a redis client", ErrInvalidInput)
		}
		return NewRedisBackend(cfg.RedisClient, cfg.CachePrefix, cfg.CacheTTL), nil
	}
	return nil, fmt.Errorf("%w: unknown cache backend %q", ErrInvalidInput, cfg.CacheBackend)
}

// PurgeProject removes every override and membership of a deleted project.
func (s *Service) PurgeProject(ctx context.Context, projectID uuid.UUID) error {
	if err := s.Overrides.DeleteAllForProject(ctx, projectID); err != nil {
		return err
	}
	if err := s.Members.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	s.log.Infow("project authorization data purged", "project_id", projectID)
	return nil
}
