package rbac

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CacheBackend stores computed effective permission maps keyed by project.
type CacheBackend interface {
	Get(ctx context.Context, projectID uuid.UUID) (PermissionMap, bool, error)
	Set(ctx context.Context, projectID uuid.UUID, m PermissionMap) error
	Delete(ctx context.Context, projectID uuid.UUID) error
}

// CacheStats reports cache activity since process start.
type CacheStats struct {
	Backend       string `json:"backend"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Invalidations uint64 `json:"invalidations"`
}

// PermissionCache is the process-wide cache of effective permission maps.
// It is created once at startup and shared by the evaluator and the
// override store. Entries have no expiry of their own; correctness relies on
// Invalidate being called by every override write.
//
// Maps handed out by Get and Load are shared and must be treated as read-only.
type PermissionCache struct {
	backend     CacheBackend
	backendName string
	log         *zap.SugaredLogger

	flight singleflight.Group
	// epochs is striped by the last byte of the project id. Projects sharing
	// a stripe only lose a cache store to each other's invalidations.
	epochs [256]atomic.Uint64

	hits          atomic.Uint64
	misses        atomic.Uint64
	invalidations atomic.Uint64
}

// NewPermissionCache wraps backend. A nil backend means an in-process map.
func NewPermissionCache(backend CacheBackend, log *zap.SugaredLogger) *PermissionCache {
	name := "redis"
	if backend == nil {
		backend = NewMemoryBackend()
	}
	if _, ok := backend.(*MemoryBackend); ok {
		name = "memory"
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &PermissionCache{backend: backend, backendName: name, log: log}
}

// Get returns the cached map for projectID. Backend failures count as a miss.
func (c *PermissionCache) Get(ctx context.Context, projectID uuid.UUID) (PermissionMap, bool) {
	m, ok, err := c.backend.Get(ctx, projectID)
	if err != nil {
		c.log.Warnw("permission cache read failed, treating as miss", "project_id", projectID, "error", err)
		ok = false
	}
	if ok {
		c.hits.Add(1)
		return m, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set stores m for projectID.
func (c *PermissionCache) Set(ctx context.Context, projectID uuid.UUID, m PermissionMap) error {
	return c.backend.Set(ctx, projectID, m)
}

// Invalidate evicts the entry for projectID. Any recomputation already in
// flight for the project will not be stored.
func (c *PermissionCache) Invalidate(ctx context.Context, projectID uuid.UUID) error {
	c.epoch(projectID).Add(1)
	c.flight.Forget(projectID.String())
	c.invalidations.Add(1)
	if err := c.backend.Delete(ctx, projectID); err != nil {
		return err
	}
	c.log.Debugw("permission cache invalidated", "project_id", projectID)
	return nil
}

// Load returns the cached map for projectID or computes, stores and returns
// it. Concurrent misses for the same project share one computation.
func (c *PermissionCache) Load(ctx context.Context, projectID uuid.UUID, compute func(context.Context) (PermissionMap, error)) (PermissionMap, error) {
	if m, ok := c.Get(ctx, projectID); ok {
		return m, nil
	}

	ch := c.flight.DoChan(projectID.String(), func() (interface{}, error) {
		epoch := c.epoch(projectID)
		start := epoch.Load()

		// The first caller's cancellation must not fail the callers sharing this flight.
		fctx := context.WithoutCancel(ctx)
		m, err := compute(fctx)
		if err != nil {
			return nil, err
		}
		if epoch.Load() != start {
			c.log.Debugw("discarding permission map computed before invalidation", "project_id", projectID)
			return m, nil
		}
		if err := c.backend.Set(fctx, projectID, m); err != nil {
			c.log.Warnw("permission cache write failed", "project_id", projectID, "error", err)
		}
		return m, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(PermissionMap), nil
	}
}

// Stats returns cache counters.
func (c *PermissionCache) Stats() CacheStats {
	return CacheStats{
		Backend:       c.backendName,
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
	}
}

func (c *PermissionCache) epoch(projectID uuid.UUID) *atomic.Uint64 {
	return &c.epochs[projectID[len(projectID)-1]]
}

// MemoryBackend keeps effective maps in a process-local map.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]PermissionMap
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[uuid.UUID]PermissionMap)}
}

func (b *MemoryBackend) Get(_ context.Context, projectID uuid.UUID) (PermissionMap, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.entries[projectID]
	return m, ok, nil
}

func (b *MemoryBackend) Set(_ context.Context, projectID uuid.UUID, m PermissionMap) error {
	b.mu.Lock()
	b.entries[projectID] = m
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, projectID uuid.UUID) error {
	b.mu.Lock()
	delete(b.entries, projectID)
	b.mu.Unlock()
	return nil
}
