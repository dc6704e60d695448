package repository

import (
	"context"
	"time"

	"github.com/linkforge/linkforge/internal/domain"
)

// URLRepository defines the contract for URL mapping persistence.
// This interface allows us to swap implementations (PostgreSQL, MySQL, MongoDB, etc.)
// without changing business logic - following Dependency Inversion Principle
type URLRepository interface {
	// Create atomically inserts a non-deleted mapping. A unique
	// violation on the active short code maps to domain.ErrAliasTaken.
	Create(ctx context.Context, m *domain.URLMapping) error

	// FindByCode retrieves a mapping by short code, excluding
	// soft-deleted rows
	FindByCode(ctx context.Context, shortCode string) (*domain.URLMapping, error)

	// FindActiveByHash returns the most recent non-deleted, non-expired
	// mapping with the given dedup hash for the owner. Scoping is
	// strict: anonymous hashes never match user-owned rows and
	// vice-versa. Returns domain.ErrURLNotFound when there is none.
	FindActiveByHash(ctx context.Context, hash string, owner *string) (*domain.URLMapping, error)

	// UpdateExpiry sets or clears the expiry of an active mapping
	UpdateExpiry(ctx context.Context, shortCode string, expiresAt *time.Time) error

	// SoftDelete marks a mapping deleted; deleting an already-deleted
	// code returns domain.ErrURLNotFound
	SoftDelete(ctx context.Context, shortCode string) error

	// BulkSoftDelete soft-deletes each code in turn and reports
	// per-element outcomes; the batch is not atomic
	BulkSoftDelete(ctx context.Context, shortCodes []string) (deleted []string, failed []string, err error)

	// IncrementAccess atomically bumps the access counter and
	// last_accessed_at. Best-effort: callers log and swallow errors.
	IncrementAccess(ctx context.Context, shortCode string) error

	// ListByOwner pages through an owner's mappings applying the
	// filter/sort contract. A nil owner lists anonymous mappings.
	ListByOwner(ctx context.Context, owner *string, req *domain.ListURLsRequest) (*domain.PagedURLs, error)

	// ExistsByShortCode checks if an active mapping holds the code
	// without fetching the row
	ExistsByShortCode(ctx context.Context, shortCode string) (bool, error)

	// FindExpiring returns active mappings whose expiry falls inside
	// [from, to); the sweeper uses this window to emit expiry events
	FindExpiring(ctx context.Context, from, to time.Time) ([]domain.URLMapping, error)

	// FindSoftDeletedOlderThan returns soft-deleted mappings whose
	// deletion predates the cutoff
	FindSoftDeletedOlderThan(ctx context.Context, cutoff time.Time) ([]domain.URLMapping, error)

	// HardDelete permanently removes soft-deleted rows; returns the
	// number of rows dropped
	HardDelete(ctx context.Context, shortCodes []string) (int64, error)
}

// UserRepository reads account records; the core never writes them
type UserRepository interface {
	// FindByID retrieves a user by identity
	FindByID(ctx context.Context, id string) (*domain.User, error)

	// FindByAPIKeyHash retrieves a user by the SHA-256 of an API key
	FindByAPIKeyHash(ctx context.Context, hash string) (*domain.User, error)
}

// NotificationSettingsRepository reads per-user webhook configuration
type NotificationSettingsRepository interface {
	// FindByUserID returns (nil, nil) when the user has no settings
	// row; absence simply disables delivery
	FindByUserID(ctx context.Context, userID string) (*domain.NotificationSettings, error)
}

// AnalyticsRepository reads pre-aggregated click totals produced by the
// external pipeline
type AnalyticsRepository interface {
	// TotalsFor returns a zero-valued aggregate when the pipeline has
	// not yet produced totals for the code
	TotalsFor(ctx context.Context, shortCode string) (*domain.AnalyticsAggregate, error)
}
