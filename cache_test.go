package rbac

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePermissionMap() PermissionMap {
	return PermissionMap{
		RoleOwner: {ResourceTask: {ActionRead: true, ActionDelete: true}},
		RoleGuest: {ResourceTask: {ActionRead: true}, ResourceEpic: {}},
	}
}

func TestPermissionCache_GetSetInvalidate(t *testing.T) {
	cache := NewPermissionCache(nil, nil)
	ctx := context.Background()
	projectID := uuid.New()

	_, ok := cache.Get(ctx, projectID)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, projectID, samplePermissionMap()))
	got, ok := cache.Get(ctx, projectID)
	require.True(t, ok)
	assert.Equal(t, samplePermissionMap(), got)

	_, ok = cache.Get(ctx, uuid.New())
	assert.False(t, ok, "entries are per project")

	require.NoError(t, cache.Invalidate(ctx, projectID))
	_, ok = cache.Get(ctx, projectID)
	assert.False(t, ok)

	stats := cache.Stats()
	assert.Equal(t, "memory", stats.Backend)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(3), stats.Misses)
	assert.Equal(t, uint64(1), stats.Invalidations)
}

func TestPermissionCache_LoadComputesOnce(t *testing.T) {
	cache := NewPermissionCache(nil, nil)
	ctx := context.Background()
	projectID := uuid.New()
	calls := 0
	compute := func(context.Context) (PermissionMap, error) {
		calls++
		return samplePermissionMap(), nil
	}

	first, err := cache.Load(ctx, projectID, compute)
	require.NoError(t, err)
	second, err := cache.Load(ctx, projectID, compute)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestPermissionCache_LoadErrorIsNotCached(t *testing.T) {
	cache := NewPermissionCache(nil, nil)
	ctx := context.Background()
	projectID := uuid.New()
	boom := errors.New("database unavailable")

	_, err := cache.Load(ctx, projectID, func(context.Context) (PermissionMap, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	m, err := cache.Load(ctx, projectID, func(context.Context) (PermissionMap, error) {
		return samplePermissionMap(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, samplePermissionMap(), m)
}

func TestPermissionCache_ConcurrentMissesShareComputation(t *testing.T) {
	finder := &countingFinder{gate: make(chan struct{})}
	cache := NewPermissionCache(nil, nil)
	evaluator := NewEvaluator(staticRoles{}, finder, cache, MustBuiltinDefaults(), nil)
	projectID := uuid.New()

	const callers = 20
	var wg sync.WaitGroup
	results := make([]PermissionMap, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = evaluator.EffectivePermissions(context.Background(), projectID)
		}(i)
	}

	// let every caller reach the flight before the computation finishes
	require.Eventually(t, func() bool { return finder.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(finder.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, BuiltinPermissions(), results[i])
	}
	assert.LessOrEqual(t, finder.calls.Load(), int32(2))
}

func TestPermissionCache_InvalidationDiscardsInflightResult(t *testing.T) {
	cache := NewPermissionCache(nil, nil)
	ctx := context.Background()
	projectID := uuid.New()

	started := make(chan struct{})
	release := make(chan struct{})
	stale := PermissionMap{RoleOwner: {ResourceTask: {ActionRead: true}}}

	done := make(chan PermissionMap)
	go func() {
		m, err := cache.Load(ctx, projectID, func(context.Context) (PermissionMap, error) {
			close(started)
			<-release
			return stale, nil
		})
		assert.NoError(t, err)
		done <- m
	}()

	<-started
	require.NoError(t, cache.Invalidate(ctx, projectID))
	close(release)

	// the caller that started the computation still gets its answer
	assert.Equal(t, stale, <-done)

	_, ok := cache.Get(ctx, projectID)
	assert.False(t, ok, "result computed before invalidation must not be stored")

	fresh := samplePermissionMap()
	m, err := cache.Load(ctx, projectID, func(context.Context) (PermissionMap, error) {
		return fresh, nil
	})
	require.NoError(t, err)
	assert.Equal(t, fresh, m)
}

func TestPermissionCache_ManyProjectsKeepCaching(t *testing.T) {
	cache := NewPermissionCache(nil, nil)
	ctx := context.Background()

	for i := 0; i < 10000; i++ {
		require.NoError(t, cache.Invalidate(ctx, uuid.New()))
	}

	// earlier invalidations on shared stripes do not block later stores
	projectID := uuid.New()
	m, err := cache.Load(ctx, projectID, func(context.Context) (PermissionMap, error) {
		return samplePermissionMap(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, samplePermissionMap(), m)

	_, ok := cache.Get(ctx, projectID)
	assert.True(t, ok)
	assert.Equal(t, uint64(10000), cache.Stats().Invalidations)
}

func TestPermissionCache_LoadHonoursCallerCancellation(t *testing.T) {
	cache := NewPermissionCache(nil, nil)
	projectID := uuid.New()
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := cache.Load(ctx, projectID, func(context.Context) (PermissionMap, error) {
		<-release
		return samplePermissionMap(), nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func setupRedisBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisBackend(client, "test:", 0), mr
}

func TestRedisBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		backend, mr := setupRedisBackend(t)
		projectID := uuid.New()

		_, ok, err := backend.Get(ctx, projectID)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, backend.Set(ctx, projectID, samplePermissionMap()))
		assert.True(t, mr.Exists("test:project:"+projectID.String()+":permissions"))
		assert.Zero(t, mr.TTL("test:project:"+projectID.String()+":permissions"))

		m, ok, err := backend.Get(ctx, projectID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, samplePermissionMap(), m)

		require.NoError(t, backend.Delete(ctx, projectID))
		_, ok, err = backend.Get(ctx, projectID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ttl", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		backend := NewRedisBackend(client, "", time.Minute)
		projectID := uuid.New()

		require.NoError(t, backend.Set(ctx, projectID, samplePermissionMap()))
		key := "rbac:project:" + projectID.String() + ":permissions"
		assert.Equal(t, time.Minute, mr.TTL(key))

		mr.FastForward(2 * time.Minute)
		_, ok, err := backend.Get(ctx, projectID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("corrupt entry", func(t *testing.T) {
		backend, mr := setupRedisBackend(t)
		projectID := uuid.New()
		require.NoError(t, mr.Set("test:project:"+projectID.String()+":permissions", "{not json"))

		_, ok, err := backend.Get(ctx, projectID)
		assert.Error(t, err)
		assert.False(t, ok)

		cache := NewPermissionCache(backend, nil)
		_, ok = cache.Get(ctx, projectID)
		assert.False(t, ok, "read failures degrade to a miss")
	})

	t.Run("clear all", func(t *testing.T) {
		backend, mr := setupRedisBackend(t)
		a, b := uuid.New(), uuid.New()
		require.NoError(t, backend.Set(ctx, a, samplePermissionMap()))
		require.NoError(t, backend.Set(ctx, b, samplePermissionMap()))
		require.NoError(t, mr.Set("other:key", "kept"))

		require.NoError(t, backend.ClearAll(ctx))

		for _, id := range []uuid.UUID{a, b} {
			_, ok, err := backend.Get(ctx, id)
			require.NoError(t, err)
			assert.False(t, ok)
		}
		assert.True(t, mr.Exists("other:key"))
	})
}

func TestPermissionCache_RedisBackend(t *testing.T) {
	backend, _ := setupRedisBackend(t)
	cache := NewPermissionCache(backend, nil)
	ctx := context.Background()
	projectID := uuid.New()

	m, err := cache.Load(ctx, projectID, func(context.Context) (PermissionMap, error) {
		return samplePermissionMap(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, samplePermissionMap(), m)

	got, ok := cache.Get(ctx, projectID)
	require.True(t, ok)
	assert.Equal(t, samplePermissionMap(), got)

	require.NoError(t, cache.Invalidate(ctx, projectID))
	_, ok = cache.Get(ctx, projectID)
	assert.False(t, ok)
	assert.Equal(t, "redis", cache.Stats().Backend)
}
