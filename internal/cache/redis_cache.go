package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linkforge/linkforge/internal/domain"
)

// negativeSentinel marks a cached not-found. Snapshot values are JSON
// objects, so the sentinel can never collide with one.
const negativeSentinel = "__NOT_FOUND__"

// RedisCache implements the URLCache interface using Redis as the
// shared tier
type RedisCache struct {
	client *redis.Client
	posTTL time.Duration
	negTTL time.Duration
}

// NewRedisCache connects to Redis using a redis:// URL.
// Returns error if connection fails.
func NewRedisCache(redisURL string, posTTL, negTTL time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolSize = 10    // Connection pool size
	opts.MinIdleConns = 5 // Minimum idle connections

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client, posTTL: posTTL, negTTL: negTTL}, nil
}

// NewRedisCacheWithClient wraps an existing client. Tests use this with
// miniredis.
func NewRedisCacheWithClient(client *redis.Client, posTTL, negTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, posTTL: posTTL, negTTL: negTTL}
}

// Get retrieves a snapshot or negative marker by short code.
// A missing key is a Miss, not an error.
func (c *RedisCache) Get(ctx context.Context, shortCode string) (*domain.URLMapping, Result, error) {
	val, err := c.client.Get(ctx, c.key(shortCode)).Result()
	if err == redis.Nil {
		return nil, Miss, nil
	}
	if err != nil {
		return nil, Miss, fmt.Errorf("redis get failed: %w", err)
	}

	if val == negativeSentinel {
		return nil, NegativeHit, nil
	}

	var m domain.URLMapping
	if err := json.Unmarshal([]byte(val), &m); err != nil {
		// Unreadable entry: drop it so the next lookup repopulates
		c.client.Del(ctx, c.key(shortCode))
		return nil, Miss, nil
	}

	return &m, Hit, nil
}

// Put stores the mapping's JSON snapshot under the positive TTL.
// Uses SET with expiry for an atomic write.
func (c *RedisCache) Put(ctx context.Context, m *domain.URLMapping) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := c.client.Set(ctx, c.key(m.ShortCode), payload, c.posTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

// PutNegative records a not-found under the (much shorter) negative
// TTL, bounding how long a newly created code can be shadowed
func (c *RedisCache) PutNegative(ctx context.Context, shortCode string) error {
	if err := c.client.Set(ctx, c.key(shortCode), negativeSentinel, c.negTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Invalidate removes the key for a code
func (c *RedisCache) Invalidate(ctx context.Context, shortCode string) error {
	if err := c.client.Del(ctx, c.key(shortCode)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Ping checks connectivity for health reporting
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// key namespaces cache entries to avoid collisions with other
// applications sharing the instance
func (c *RedisCache) key(shortCode string) string {
	return "url:" + shortCode
}
