// Package resolver implements the redirect hot path: cache-first
// lookup with request coalescing, then best-effort click accounting.
package resolver

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/linkforge/linkforge/internal/cache"
	"github.com/linkforge/linkforge/internal/domain"
	"github.com/linkforge/linkforge/internal/metrics"
	"github.com/linkforge/linkforge/internal/repository"
	"github.com/linkforge/linkforge/pkg/logger"
)

// ClickPublisher receives one event per resolved redirect. Publish
// must not block; the analytics pipeline is strictly best-effort.
type ClickPublisher interface {
	Publish(ev domain.ClickEvent)
}

// Notifier enqueues a webhook event for a mapping owner
type Notifier interface {
	Enqueue(ownerID *string, event domain.EventType, data map[string]interface{})
}

// RequestMeta carries best-effort client context into click events
type RequestMeta struct {
	SourceIP  string
	UserAgent string
	Referrer  string
}

// Resolver turns short codes into destinations. It owns the cache
// read/backfill policy and the fire-and-forget side effects of a
// successful redirect.
type Resolver struct {
	repo        repository.URLRepository
	cache       cache.URLCache
	clicks      ClickPublisher
	notifier    Notifier
	log         *logger.Logger
	group       singleflight.Group
	clickSample int
	clickSeq    atomic.Uint64
}

// New creates a Resolver. clicks and notifier may be nil, which
// disables the respective side effect. clickSample of N forwards every
// Nth click to the owner's webhook; 0 disables forwarding entirely.
func New(repo repository.URLRepository, c cache.URLCache, clicks ClickPublisher, notifier Notifier, clickSample int, log *logger.Logger) *Resolver {
	return &Resolver{
		repo:        repo,
		cache:       c,
		clicks:      clicks,
		notifier:    notifier,
		clickSample: clickSample,
		log:         log,
	}
}

// Resolve maps a short code to its destination.
// Returns domain.ErrURLNotFound for unknown or deleted codes and
// domain.ErrURLExpired for codes past their expiry.
func (r *Resolver) Resolve(ctx context.Context, shortCode string, meta RequestMeta) (*domain.URLMapping, error) {
	m, res, _ := r.cache.Get(ctx, shortCode)

	switch res {
	case cache.NegativeHit:
		metrics.RedirectsTotal.WithLabelValues("not_found").Inc()
		return nil, domain.ErrURLNotFound

	case cache.Hit:
		if m.IsExpired() {
			// Expired entries are left to age out; they must not be
			// negative-cached because 410 and 404 are different answers
			metrics.RedirectsTotal.WithLabelValues("expired").Inc()
			return nil, domain.ErrURLExpired
		}
		r.recordHit(m, meta)
		return m, nil
	}

	m, err := r.lookup(ctx, shortCode)
	if err != nil {
		if errors.Is(err, domain.ErrURLNotFound) {
			metrics.RedirectsTotal.WithLabelValues("not_found").Inc()
		} else if errors.Is(err, domain.ErrURLExpired) {
			metrics.RedirectsTotal.WithLabelValues("expired").Inc()
		} else {
			metrics.RedirectsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	r.recordHit(m, meta)
	return m, nil
}

// lookup is the cache-miss path. Concurrent misses for one code are
// coalesced into a single database query.
func (r *Resolver) lookup(ctx context.Context, shortCode string) (*domain.URLMapping, error) {
	v, err, _ := r.group.Do(shortCode, func() (interface{}, error) {
		m, err := r.repo.FindByCode(ctx, shortCode)
		if err != nil {
			if errors.Is(err, domain.ErrURLNotFound) {
				_ = r.cache.PutNegative(ctx, shortCode)
			}
			return nil, err
		}

		if m.IsExpired() {
			return nil, domain.ErrURLExpired
		}

		_ = r.cache.Put(ctx, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.URLMapping), nil
}

// recordHit performs the after-redirect bookkeeping: the access
// counter bump, the analytics click event and the sampled url.clicked
// webhook. None of it may slow down or fail the redirect.
func (r *Resolver) recordHit(m *domain.URLMapping, meta RequestMeta) {
	metrics.RedirectsTotal.WithLabelValues("redirected").Inc()

	shortCode := m.ShortCode
	go func() {
		if err := r.repo.IncrementAccess(context.Background(), shortCode); err != nil {
			r.log.Warnw("failed to increment access count",
				"short_code", shortCode, "error", err)
		}
	}()

	now := time.Now().UTC()

	if r.clicks != nil {
		r.clicks.Publish(domain.ClickEvent{
			ID:         uuid.NewString(),
			ShortCode:  shortCode,
			OccurredAt: now,
			SourceIP:   meta.SourceIP,
			UserAgent:  meta.UserAgent,
			Referrer:   meta.Referrer,
		})
	}

	if r.notifier != nil && r.clickSample > 0 && m.OwnerID != nil {
		if r.clickSeq.Add(1)%uint64(r.clickSample) == 0 {
			r.notifier.Enqueue(m.OwnerID, domain.EventURLClicked, map[string]interface{}{
				"short_code":  shortCode,
				"long_url":    m.LongURL,
				"occurred_at": now.Format(time.RFC3339),
				"referrer":    meta.Referrer,
			})
		}
	}
}
