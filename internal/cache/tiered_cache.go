package cache

import (
	"context"
	"errors"

	"github.com/linkforge/linkforge/internal/domain"
	"github.com/linkforge/linkforge/internal/metrics"
	"github.com/linkforge/linkforge/pkg/logger"
)

// TieredCache layers the in-process tier over the shared Redis tier.
// Reads check L1 first and backfill it from L2. Writes and
// invalidations go to both. Tier failures are absorbed here: a broken
// cache degrades lookups to misses instead of failing redirects.
type TieredCache struct {
	l1  URLCache
	l2  URLCache
	log *logger.Logger
}

// NewTieredCache composes the tiers. Either tier may be nil and is
// simply skipped, so the service can run cache-less or Redis-less.
func NewTieredCache(l1, l2 URLCache, log *logger.Logger) *TieredCache {
	return &TieredCache{l1: l1, l2: l2, log: log}
}

// Get consults L1, then L2, backfilling L1 on shared-tier answers
func (c *TieredCache) Get(ctx context.Context, shortCode string) (*domain.URLMapping, Result, error) {
	if c.l1 != nil {
		m, res, err := c.l1.Get(ctx, shortCode)
		if err == nil && res != Miss {
			metrics.CacheLookupsTotal.WithLabelValues("l1", res.String()).Inc()
			return m, res, nil
		}
		metrics.CacheLookupsTotal.WithLabelValues("l1", Miss.String()).Inc()
	}

	if c.l2 == nil {
		return nil, Miss, nil
	}

	m, res, err := c.l2.Get(ctx, shortCode)
	if err != nil {
		c.log.Warnw("shared cache read failed, treating as miss",
			"short_code", shortCode, "error", err)
		metrics.CacheLookupsTotal.WithLabelValues("l2", Miss.String()).Inc()
		return nil, Miss, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues("l2", res.String()).Inc()

	switch res {
	case Hit:
		if c.l1 != nil {
			_ = c.l1.Put(ctx, m)
		}
		return m, Hit, nil
	case NegativeHit:
		if c.l1 != nil {
			_ = c.l1.PutNegative(ctx, shortCode)
		}
		return nil, NegativeHit, nil
	default:
		return nil, Miss, nil
	}
}

// Put stores the snapshot in both tiers
func (c *TieredCache) Put(ctx context.Context, m *domain.URLMapping) error {
	if c.l2 != nil {
		if err := c.l2.Put(ctx, m); err != nil {
			c.log.Warnw("shared cache write failed",
				"short_code", m.ShortCode, "error", err)
		}
	}
	if c.l1 != nil {
		_ = c.l1.Put(ctx, m)
	}
	return nil
}

// PutNegative records a not-found in both tiers
func (c *TieredCache) PutNegative(ctx context.Context, shortCode string) error {
	if c.l2 != nil {
		if err := c.l2.PutNegative(ctx, shortCode); err != nil {
			c.log.Warnw("shared cache write failed",
				"short_code", shortCode, "error", err)
		}
	}
	if c.l1 != nil {
		_ = c.l1.PutNegative(ctx, shortCode)
	}
	return nil
}

// Invalidate drops the code from both tiers. A failed shared-tier
// invalidation is logged but does not fail the calling write; the
// entry still ages out by TTL.
func (c *TieredCache) Invalidate(ctx context.Context, shortCode string) error {
	if c.l1 != nil {
		_ = c.l1.Invalidate(ctx, shortCode)
	}
	if c.l2 != nil {
		if err := c.l2.Invalidate(ctx, shortCode); err != nil {
			c.log.Warnw("shared cache invalidation failed",
				"short_code", shortCode, "error", err)
		}
	}
	return nil
}

// Close closes both tiers
func (c *TieredCache) Close() error {
	var errs []error
	if c.l1 != nil {
		errs = append(errs, c.l1.Close())
	}
	if c.l2 != nil {
		errs = append(errs, c.l2.Close())
	}
	return errors.Join(errs...)
}
