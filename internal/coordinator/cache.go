package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aegis-desktop/aegis/internal/platform/cache"
)

// ResponseCache stores successful responses keyed by (user, resource,
// action) for a short TTL.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*SecurityResponse, bool)
	Set(ctx context.Context, key string, resp *SecurityResponse, ttl time.Duration)
	Invalidate(ctx context.Context, userPrefix string)
}

// MemoryResponseCache is the default process-local cache.
type MemoryResponseCache struct {
	store *cache.Memory
}

// NewMemoryResponseCache constructs an empty cache.
func NewMemoryResponseCache() *MemoryResponseCache {
	return &MemoryResponseCache{store: cache.NewMemory()}
}

// Store exposes the backing store for the maintenance sweeper.
func (c *MemoryResponseCache) Store() *cache.Memory { return c.store }

// Get implements ResponseCache.
func (c *MemoryResponseCache) Get(_ context.Context, key string) (*SecurityResponse, bool) {
	v, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	resp := v.(SecurityResponse)
	return &resp, true
}

// Set implements ResponseCache.
func (c *MemoryResponseCache) Set(_ context.Context, key string, resp *SecurityResponse, ttl time.Duration) {
	c.store.Set(key, *resp, ttl)
}

// Invalidate implements ResponseCache.
func (c *MemoryResponseCache) Invalidate(_ context.Context, userPrefix string) {
	c.store.DeleteByPrefix(userPrefix)
}

// RedisResponseCache shares the response cache across processes. Used when
// several application components run against one Redis.
type RedisResponseCache struct {
	client *redis.Client
	prefix string
}

// NewRedisResponseCache constructs a cache over client.
func NewRedisResponseCache(client *redis.Client) *RedisResponseCache {
	return &RedisResponseCache{client: client, prefix: "aegis:response:"}
}

// Get implements ResponseCache. Any Redis error is treated as a miss.
func (c *RedisResponseCache) Get(ctx context.Context, key string) (*SecurityResponse, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	var resp SecurityResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

// Set implements ResponseCache.
func (c *RedisResponseCache) Set(ctx context.Context, key string, resp *SecurityResponse, ttl time.Duration) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}

// Invalidate implements ResponseCache.
func (c *RedisResponseCache) Invalidate(ctx context.Context, userPrefix string) {
	iter := c.client.Scan(ctx, 0, c.prefix+userPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		_ = c.client.Del(ctx, iter.Val()).Err()
	}
}
