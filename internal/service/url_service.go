package service

import (
	"context"

	"github.com/linkforge/linkforge/internal/domain"
)

// URLService is the management surface of the shortener: creation,
// inspection, and lifecycle of mappings. The redirect hot path does not
// live here; see the resolver package.
type URLService interface {
	// CreateURL shortens a destination URL for the calling principal.
	// Anonymous callers are allowed; their mappings always expire.
	CreateURL(ctx context.Context, p domain.Principal, req *domain.CreateURLRequest) (*domain.CreateURLResponse, error)

	// GetURLInfo returns the public metadata for a short code
	GetURLInfo(ctx context.Context, shortCode string) (*domain.URLInfoResponse, error)

	// ListURLs pages through the caller's own mappings
	ListURLs(ctx context.Context, p domain.Principal, req *domain.ListURLsRequest) (*domain.PagedURLs, error)

	// UpdateExpiry reschedules or removes a mapping's expiry
	UpdateExpiry(ctx context.Context, p domain.Principal, shortCode string, req *domain.UpdateExpiryRequest) (*domain.URLInfoResponse, error)

	// DeleteURL soft-deletes a single mapping
	DeleteURL(ctx context.Context, p domain.Principal, shortCode string) (*domain.DeleteURLResponse, error)

	// BulkDelete soft-deletes a batch of mappings with per-element
	// outcomes; one bad code never fails the rest
	BulkDelete(ctx context.Context, p domain.Principal, req *domain.BulkDeleteRequest) (*domain.BulkDeleteResponse, error)

	// CheckAlias reports whether a custom alias is free, with
	// alternatives when it is not
	CheckAlias(ctx context.Context, alias string) (*domain.CheckAliasResponse, error)

	// GetStats merges the mapping's own counters with the analytics
	// aggregates
	GetStats(ctx context.Context, p domain.Principal, shortCode string) (*domain.URLStats, error)

	// SendTestWebhook enqueues a webhook.test delivery so callers can
	// verify their endpoint and signature handling
	SendTestWebhook(ctx context.Context, p domain.Principal) error
}

// Notifier fans lifecycle events out to owner webhooks. Enqueue must
// not block; implementations shed load instead.
type Notifier interface {
	Enqueue(ownerID *string, event domain.EventType, data map[string]interface{})
}
