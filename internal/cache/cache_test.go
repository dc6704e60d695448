package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkforge/linkforge/internal/domain"
	"github.com/linkforge/linkforge/pkg/logger"
)

func testMapping(code string) *domain.URLMapping {
	owner := "user-1"
	expires := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	return &domain.URLMapping{
		ShortCode:     code,
		LongURL:       "https://example.com/some/path",
		OwnerID:       &owner,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
		ExpiresAt:     &expires,
		IsCustomAlias: true,
	}
}

func newTestRedisCache(t *testing.T, posTTL, negTTL time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCacheWithClient(client, posTTL, negTTL), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c, _ := newTestRedisCache(t, time.Hour, time.Minute)
	ctx := context.Background()

	m := testMapping("abc1234")
	require.NoError(t, c.Put(ctx, m))

	got, res, err := c.Get(ctx, "abc1234")
	require.NoError(t, err)
	assert.Equal(t, Hit, res)
	assert.Equal(t, m.ShortCode, got.ShortCode)
	assert.Equal(t, m.LongURL, got.LongURL)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, "user-1", *got.OwnerID)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, m.ExpiresAt.Equal(*got.ExpiresAt))
}

func TestRedisCacheMiss(t *testing.T) {
	c, _ := newTestRedisCache(t, time.Hour, time.Minute)

	got, res, err := c.Get(context.Background(), "nothere")
	require.NoError(t, err)
	assert.Equal(t, Miss, res)
	assert.Nil(t, got)
}

func TestRedisCacheNegativeEntry(t *testing.T) {
	c, mr := newTestRedisCache(t, time.Hour, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.PutNegative(ctx, "ghost"))

	got, res, err := c.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, NegativeHit, res)
	assert.Nil(t, got)

	// Negative entries expire on the short TTL while positive ones
	// stay on the long one
	require.NoError(t, c.Put(ctx, testMapping("kept123")))
	mr.FastForward(2 * time.Minute)

	_, res, err = c.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, Miss, res)

	_, res, err = c.Get(ctx, "kept123")
	require.NoError(t, err)
	assert.Equal(t, Hit, res)
}

func TestRedisCacheKeyNamespace(t *testing.T) {
	c, mr := newTestRedisCache(t, time.Hour, time.Minute)

	require.NoError(t, c.Put(context.Background(), testMapping("abc1234")))
	assert.True(t, mr.Exists("url:abc1234"))
}

func TestRedisCacheInvalidate(t *testing.T) {
	c, _ := newTestRedisCache(t, time.Hour, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, testMapping("abc1234")))
	require.NoError(t, c.Invalidate(ctx, "abc1234"))

	_, res, err := c.Get(ctx, "abc1234")
	require.NoError(t, err)
	assert.Equal(t, Miss, res)
}

func TestRedisCacheCorruptEntryDegradesToMiss(t *testing.T) {
	c, mr := newTestRedisCache(t, time.Hour, time.Minute)

	require.NoError(t, mr.Set("url:bad", "{not-json"))

	got, res, err := c.Get(context.Background(), "bad")
	require.NoError(t, err)
	assert.Equal(t, Miss, res)
	assert.Nil(t, got)

	// The poisoned key is dropped so it cannot keep answering
	assert.False(t, mr.Exists("url:bad"))
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c, err := NewMemoryCache(100, time.Minute, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	m := testMapping("mem1234")

	require.NoError(t, c.Put(ctx, m))
	c.Wait()

	got, res, err := c.Get(ctx, "mem1234")
	require.NoError(t, err)
	assert.Equal(t, Hit, res)
	assert.Equal(t, m.LongURL, got.LongURL)

	require.NoError(t, c.PutNegative(ctx, "ghost"))
	c.Wait()

	_, res, err = c.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, NegativeHit, res)

	require.NoError(t, c.Invalidate(ctx, "mem1234"))
	c.Wait()

	_, res, err = c.Get(ctx, "mem1234")
	require.NoError(t, err)
	assert.Equal(t, Miss, res)
}

func TestTieredCacheBackfillsL1(t *testing.T) {
	l1, err := NewMemoryCache(100, time.Minute, time.Minute)
	require.NoError(t, err)
	l2, _ := newTestRedisCache(t, time.Hour, time.Minute)

	tiered := NewTieredCache(l1, l2, logger.NewLogger())
	defer tiered.Close()

	ctx := context.Background()
	m := testMapping("tier123")

	// Seed only the shared tier, as another instance would
	require.NoError(t, l2.Put(ctx, m))

	got, res, err := tiered.Get(ctx, "tier123")
	require.NoError(t, err)
	assert.Equal(t, Hit, res)
	assert.Equal(t, m.LongURL, got.LongURL)

	// The hit should now be answerable from L1 alone
	l1.Wait()
	_, res, err = l1.Get(ctx, "tier123")
	require.NoError(t, err)
	assert.Equal(t, Hit, res)
}

func TestTieredCacheBackfillsNegative(t *testing.T) {
	l1, err := NewMemoryCache(100, time.Minute, time.Minute)
	require.NoError(t, err)
	l2, _ := newTestRedisCache(t, time.Hour, time.Minute)

	tiered := NewTieredCache(l1, l2, logger.NewLogger())
	defer tiered.Close()

	ctx := context.Background()
	require.NoError(t, l2.PutNegative(ctx, "ghost"))

	_, res, err := tiered.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, NegativeHit, res)

	l1.Wait()
	_, res, err = l1.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, NegativeHit, res)
}

func TestTieredCacheDegradesWhenRedisFails(t *testing.T) {
	l1, err := NewMemoryCache(100, time.Minute, time.Minute)
	require.NoError(t, err)
	l2, mr := newTestRedisCache(t, time.Hour, time.Minute)

	tiered := NewTieredCache(l1, l2, logger.NewLogger())

	mr.SetError("connection refused")

	got, res, err := tiered.Get(context.Background(), "whatever")
	require.NoError(t, err)
	assert.Equal(t, Miss, res)
	assert.Nil(t, got)

	// Writes must not propagate the failure either
	assert.NoError(t, tiered.Put(context.Background(), testMapping("whatever")))
	assert.NoError(t, tiered.Invalidate(context.Background(), "whatever"))
}

func TestTieredCacheWithoutSharedTier(t *testing.T) {
	l1, err := NewMemoryCache(100, time.Minute, time.Minute)
	require.NoError(t, err)

	tiered := NewTieredCache(l1, nil, logger.NewLogger())
	defer tiered.Close()

	ctx := context.Background()
	m := testMapping("solo123")

	require.NoError(t, tiered.Put(ctx, m))
	l1.Wait()

	got, res, err := tiered.Get(ctx, "solo123")
	require.NoError(t, err)
	assert.Equal(t, Hit, res)
	assert.Equal(t, m.LongURL, got.LongURL)
}

func TestTieredCacheInvalidateDropsBothTiers(t *testing.T) {
	l1, err := NewMemoryCache(100, time.Minute, time.Minute)
	require.NoError(t, err)
	l2, mr := newTestRedisCache(t, time.Hour, time.Minute)

	tiered := NewTieredCache(l1, l2, logger.NewLogger())
	defer tiered.Close()

	ctx := context.Background()
	m := testMapping("gone123")

	require.NoError(t, tiered.Put(ctx, m))
	l1.Wait()

	require.NoError(t, tiered.Invalidate(ctx, "gone123"))
	l1.Wait()

	assert.False(t, mr.Exists("url:gone123"))

	_, res, err := tiered.Get(ctx, "gone123")
	require.NoError(t, err)
	assert.Equal(t, Miss, res)
}
