package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/linkforge/linkforge/internal/domain"
)

// l1Entry wraps a cached value so negative entries are distinguishable
// from real snapshots
type l1Entry struct {
	mapping  *domain.URLMapping
	negative bool
}

// MemoryCache implements URLCache with an in-process ristretto cache.
// It fronts the Redis tier on the redirect hot path. Its TTLs stay
// short because an entry here can outlive an invalidation issued by
// another instance for at most this window.
type MemoryCache struct {
	cache  *ristretto.Cache
	posTTL time.Duration
	negTTL time.Duration
}

// NewMemoryCache creates the in-process tier sized to roughly
// maxEntries snapshots
func NewMemoryCache(maxEntries int64, posTTL, negTTL time.Duration) (*MemoryCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		// Ristretto tracks access frequency for about 10x the number
		// of items it can hold
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		// Each entry costs 1 so MaxCost counts entries, not bytes
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}

	return &MemoryCache{
		cache:  c,
		posTTL: posTTL,
		negTTL: negTTL,
	}, nil
}

// Get looks up a snapshot or negative marker by short code
func (c *MemoryCache) Get(ctx context.Context, shortCode string) (*domain.URLMapping, Result, error) {
	v, found := c.cache.Get(shortCode)
	if !found {
		return nil, Miss, nil
	}

	entry, ok := v.(l1Entry)
	if !ok {
		c.cache.Del(shortCode)
		return nil, Miss, nil
	}

	if entry.negative {
		return nil, NegativeHit, nil
	}
	return entry.mapping, Hit, nil
}

// Put stores a mapping snapshot. Ristretto admission may reject the
// entry under pressure; that is indistinguishable from an early
// eviction and equally harmless.
func (c *MemoryCache) Put(ctx context.Context, m *domain.URLMapping) error {
	c.cache.SetWithTTL(m.ShortCode, l1Entry{mapping: m}, 1, c.posTTL)
	return nil
}

// PutNegative records that a code does not exist
func (c *MemoryCache) PutNegative(ctx context.Context, shortCode string) error {
	c.cache.SetWithTTL(shortCode, l1Entry{negative: true}, 1, c.negTTL)
	return nil
}

// Invalidate removes the entry for a code
func (c *MemoryCache) Invalidate(ctx context.Context, shortCode string) error {
	c.cache.Del(shortCode)
	return nil
}

// Wait blocks until buffered writes are applied. Only tests need this;
// production callers tolerate the admission delay.
func (c *MemoryCache) Wait() {
	c.cache.Wait()
}

// Close releases the cache's internal goroutines
func (c *MemoryCache) Close() error {
	c.cache.Close()
	return nil
}
