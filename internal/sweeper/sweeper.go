// Package sweeper runs the background lifecycle loop: it observes
// mappings crossing their expiry so owners get notified and caches
// drop the entry, and it reaps soft-deleted rows once their retention
// window has passed.
package sweeper

import (
	"context"
	"time"

	"github.com/linkforge/linkforge/internal/cache"
	"github.com/linkforge/linkforge/internal/domain"
	"github.com/linkforge/linkforge/internal/metrics"
	"github.com/linkforge/linkforge/internal/repository"
	"github.com/linkforge/linkforge/pkg/logger"
)

// Notifier enqueues a webhook event for a mapping owner
type Notifier interface {
	Enqueue(ownerID *string, event domain.EventType, data map[string]interface{})
}

// hardDeleteBatch bounds one reaper pass so a backlog of old rows
// cannot hold a connection for long
const hardDeleteBatch = 500

// Sweeper is the long-lived background task. It does not change
// resolve semantics: expiry is enforced at read time regardless; the
// sweeper only adds the url.expired notification, the cache drop and
// the eventual hard delete.
type Sweeper struct {
	repo     repository.URLRepository
	cache    cache.URLCache
	notifier Notifier
	log      *logger.Logger

	interval  time.Duration
	retention time.Duration

	// lastSweep is the left edge of the next expiry window, so each
	// expiry is observed by exactly one run
	lastSweep time.Time
}

// New creates a sweeper. cache and notifier may be nil.
func New(repo repository.URLRepository, c cache.URLCache, n Notifier, interval time.Duration, retentionDays int, log *logger.Logger) *Sweeper {
	return &Sweeper{
		repo:      repo,
		cache:     c,
		notifier:  n,
		log:       log,
		interval:  interval,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		lastSweep: time.Now(),
	}
}

// Run loops until the context is cancelled. Intended to be launched as
// a goroutine from main and stopped during shutdown.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Infow("Sweeper started",
		"interval", s.interval, "retention", s.retention)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep executes one pass of both phases
func (s *Sweeper) Sweep(ctx context.Context) {
	ok := true
	if err := s.sweepExpired(ctx); err != nil {
		s.log.Errorw("Expiry sweep failed", "error", err)
		ok = false
	}
	if err := s.reapDeleted(ctx); err != nil {
		s.log.Errorw("Soft-delete reap failed", "error", err)
		ok = false
	}

	if ok {
		metrics.SweeperRunsTotal.WithLabelValues("ok").Inc()
	} else {
		metrics.SweeperRunsTotal.WithLabelValues("error").Inc()
	}
}

// sweepExpired walks the expiry window [lastSweep, now), invalidating
// caches and dispatching url.expired per mapping. The window only
// advances on success so a failed run is retried rather than skipped.
func (s *Sweeper) sweepExpired(ctx context.Context) error {
	now := time.Now()

	expired, err := s.repo.FindExpiring(ctx, s.lastSweep, now)
	if err != nil {
		return err
	}

	for i := range expired {
		m := &expired[i]

		if s.cache != nil {
			if err := s.cache.Invalidate(ctx, m.ShortCode); err != nil {
				s.log.Warnw("Cache invalidation failed for expired mapping",
					"short_code", m.ShortCode, "error", err)
			}
		}

		if s.notifier != nil && m.ExpiresAt != nil {
			s.notifier.Enqueue(m.OwnerID, domain.EventURLExpired, map[string]interface{}{
				"short_code": m.ShortCode,
				"long_url":   m.LongURL,
				"expired_at": m.ExpiresAt.UTC().Format(time.RFC3339),
			})
		}
	}

	if len(expired) > 0 {
		s.log.Infow("Swept expired mappings", "count", len(expired))
	}

	s.lastSweep = now
	return nil
}

// reapDeleted hard-deletes soft-deleted rows past the retention cutoff
func (s *Sweeper) reapDeleted(ctx context.Context) error {
	cutoff := time.Now().Add(-s.retention)

	stale, err := s.repo.FindSoftDeletedOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	codes := make([]string, 0, len(stale))
	for i := range stale {
		codes = append(codes, stale[i].ShortCode)
		if len(codes) == hardDeleteBatch {
			break
		}
	}

	dropped, err := s.repo.HardDelete(ctx, codes)
	if err != nil {
		return err
	}

	s.log.Infow("Reaped soft-deleted mappings",
		"dropped", dropped, "cutoff", cutoff)
	return nil
}
