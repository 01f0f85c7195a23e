package rbac

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewService(t *testing.T) {
	t.Run("requires a database", func(t *testing.T) {
		_, err := NewService(Config{})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("memory backend by default", func(t *testing.T) {
		svc := setupTestService(t)
		assert.Equal(t, CacheBackendMemory, svc.Cache.Stats().Backend)
		assert.Equal(t, BuiltinPermissions(), svc.Defaults.Table())
	})

	t.Run("redis backend requires a client", func(t *testing.T) {
		_, err := NewService(Config{DB: setupTestDB(t), CacheBackend: CacheBackendRedis})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := NewService(Config{DB: setupTestDB(t), CacheBackend: "memcached"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("custom defaults", func(t *testing.T) {
		defaults, err := NewDefaults(PermissionMap{
			RoleOwner: {ResourceTask: {ActionRead: true}},
		})
		require.NoError(t, err)

		svc, err := NewService(Config{DB: setupTestDB(t), Defaults: defaults})
		require.NoError(t, err)
		assert.True(t, svc.Defaults.HasRole(RoleOwner))
		assert.False(t, svc.Defaults.HasRole(RoleUser))
	})
}

func TestNewService_RedisFlushOnStart(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	stale := uuid.New()
	require.NoError(t, NewRedisBackend(client, "svc:", 0).Set(context.Background(), stale, samplePermissionMap()))

	svc, err := NewService(Config{
		DB:                setupTestDB(t),
		RedisClient:       client,
		CacheBackend:      CacheBackendRedis,
		CachePrefix:       "svc:",
		FlushCacheOnStart: true,
	})
	require.NoError(t, err)
	assert.Equal(t, CacheBackendRedis, svc.Cache.Stats().Backend)
	assert.False(t, mr.Exists("svc:project:"+stale.String()+":permissions"))

	// end to end through the shared backend
	f := seedProject(t, svc)
	allowed, err := svc.Evaluator.Evaluate(context.Background(), f.user, f.projectID, "POST", ResourceTask)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.True(t, mr.Exists("svc:project:"+f.projectID.String()+":permissions"))

	_, err = svc.Overrides.Upsert(context.Background(), f.projectID, []RolePermissions{
		{Role: RoleUser, Permissions: ResourcePermissions{ResourceTask: {ActionRead: true}}},
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("svc:project:"+f.projectID.String()+":permissions"))

	allowed, err = svc.Evaluator.Evaluate(context.Background(), f.user, f.projectID, "POST", ResourceTask)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestService_PurgeProject(t *testing.T) {
	svc := setupTestService(t)
	f := seedProject(t, svc)
	ctx := context.Background()

	_, err := svc.Overrides.Upsert(ctx, f.projectID, []RolePermissions{
		{Role: RoleGuest, Permissions: ResourcePermissions{ResourceTask: {ActionCreate: true}}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.PurgeProject(ctx, f.projectID))

	overrides, err := svc.Overrides.FindByProject(ctx, f.projectID)
	require.NoError(t, err)
	assert.Empty(t, overrides)

	members, err := svc.Members.ListMembers(ctx, f.projectID)
	require.NoError(t, err)
	assert.Empty(t, members)

	_, err = svc.Evaluator.Evaluate(ctx, f.owner, f.projectID, "GET", ResourceProject)
	assert.ErrorIs(t, err, ErrNotAMember)
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 200},
		{ErrNotAMember, 401},
		{ErrUnauthenticated, 401},
		{ErrPermissionDenied, 403},
		{ErrOverrideNotFound, 404},
		{ErrNotFound, 404},
		{ErrInvalidInput, 400},
		{context.Canceled, 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusCode(tt.err), "%v", tt.err)
	}
}
