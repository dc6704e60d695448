package cache

import (
	"context"

	"github.com/linkforge/linkforge/internal/domain"
)

// Result classifies a cache lookup. A NegativeHit means the cache
// remembers the code does not exist, which lets the hot path answer
// repeated misses without touching the database.
type Result int

const (
	// Miss means the cache holds nothing for the code
	Miss Result = iota

	// Hit means the cache returned a mapping snapshot
	Hit

	// NegativeHit means the cache recorded a recent not-found
	NegativeHit
)

// String implements fmt.Stringer for log and metric labels
func (r Result) String() string {
	switch r {
	case Hit:
		return "hit"
	case NegativeHit:
		return "negative_hit"
	default:
		return "miss"
	}
}

// URLCache defines the interface for mapping-snapshot caching.
// This abstraction allows swapping cache implementations (Redis, in-process, tiered)
// without changing resolution logic.
type URLCache interface {
	// Get looks up a snapshot by short code
	Get(ctx context.Context, shortCode string) (*domain.URLMapping, Result, error)

	// Put stores a mapping snapshot under the implementation's
	// positive TTL
	Put(ctx context.Context, m *domain.URLMapping) error

	// PutNegative records that a code does not exist, under the
	// implementation's negative TTL
	PutNegative(ctx context.Context, shortCode string) error

	// Invalidate removes whatever the cache holds for the code,
	// positive or negative
	Invalidate(ctx context.Context, shortCode string) error

	// Close releases the cache's resources
	Close() error
}
