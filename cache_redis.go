package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisBackend stores effective maps as JSON under "<prefix>project:<id>:permissions".
// A zero TTL stores entries without expiry.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisBackend(client *redis.Client, prefix string, ttl time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = "rbac:"
	}
	return &RedisBackend{client: client, prefix: prefix, ttl: ttl}
}

// getCacheKey generates a Redis cache key for a project's effective map.
func (b *RedisBackend) getCacheKey(projectID uuid.UUID) string {
	return fmt.Sprintf("%sproject:%s:permissions", b.prefix, projectID)
}

func (b *RedisBackend) Get(ctx context.Context, projectID uuid.UUID) (PermissionMap, bool, error) {
	raw, err := b.client.Get(ctx, b.getCacheKey(projectID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var m PermissionMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached permissions: %w", err)
	}
	return m, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, projectID uuid.UUID, m PermissionMap) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode permissions: %w", err)
	}
	return b.client.Set(ctx, b.getCacheKey(projectID), raw, b.ttl).Err()
}

func (b *RedisBackend) Delete(ctx context.Context, projectID uuid.UUID) error {
	return b.client.Del(ctx, b.getCacheKey(projectID)).Err()
}

// ClearAll removes every project entry under the prefix.
func (b *RedisBackend) ClearAll(ctx context.Context) error {
	iter := b.client.Scan(ctx, 0, b.prefix+"project:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return b.client.Del(ctx, keys...).Err()
	}
	return nil
}
