package domain

import (
	"time"
)

// URLMapping represents a short code bound to a destination URL.
// This is the core domain entity; all lifecycle state (expiry, soft
// deletion, access accounting) lives on this row.
type URLMapping struct {
	ID             uint       `gorm:"primaryKey" json:"-"`
	ShortCode      string     `gorm:"size:50;not null;uniqueIndex:idx_url_mappings_active_code,where:is_deleted = false" json:"short_code"`
	LongURL        string     `gorm:"not null;type:text" json:"long_url"`
	LongURLHash    string     `gorm:"size:64;not null;index:idx_url_mappings_hash" json:"-"`
	OwnerID        *string    `gorm:"size:64;index" json:"owner_id,omitempty"` // nil for anonymous mappings
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"-"`
	ExpiresAt      *time.Time `gorm:"index" json:"expires_at,omitempty"` // nil means the mapping never expires
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	AccessCount    int64      `gorm:"default:0" json:"access_count"` // best-effort; analytics totals are authoritative
	IsCustomAlias  bool       `gorm:"default:false" json:"is_custom_alias"`
	IsDeleted      bool       `gorm:"default:false;index" json:"-"`
	DeletedAt      *time.Time `json:"-"`
}

// TableName specifies the table name for GORM
func (URLMapping) TableName() string {
	return "url_mappings"
}

// IsExpired checks if the mapping has passed its expiry timestamp
func (m *URLMapping) IsExpired() bool {
	if m.ExpiresAt == nil {
		return false // Never expires
	}
	return time.Now().After(*m.ExpiresAt)
}

// IsAnonymous reports whether the mapping has no owner
func (m *URLMapping) IsAnonymous() bool {
	return m.OwnerID == nil
}

// OwnedBy reports whether the mapping belongs to the given user
func (m *URLMapping) OwnedBy(userID string) bool {
	return m.OwnerID != nil && *m.OwnerID == userID
}

// ClickEvent is the raw event emitted to the analytics queue on every
// resolved redirect. All fields except ShortCode and OccurredAt are
// best-effort request metadata.
type ClickEvent struct {
	ID         string    `json:"id"`
	ShortCode  string    `json:"short_code"`
	OccurredAt time.Time `json:"occurred_at"`
	SourceIP   string    `json:"source_ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Referrer   string    `json:"referrer,omitempty"`
}

// AnalyticsAggregate holds pre-aggregated click totals produced by the
// external analytics pipeline. The core only reads these rows.
type AnalyticsAggregate struct {
	ShortCode      string     `gorm:"primaryKey;size:50" json:"short_code"`
	TotalClicks    int64      `gorm:"default:0" json:"total_clicks"`
	UniqueVisitors int64      `gorm:"default:0" json:"unique_visitors"`
	LastClickAt    *time.Time `json:"last_click_at,omitempty"`
}

// TableName specifies the table name for GORM
func (AnalyticsAggregate) TableName() string {
	return "analytics_aggregates"
}

// URLStats combines the mapping's own counters with the authoritative
// analytics aggregates for the stats endpoint.
type URLStats struct {
	ShortCode      string     `json:"short_code"`
	LongURL        string     `json:"long_url"`
	AccessCount    int64      `json:"access_count"`
	TotalClicks    int64      `json:"total_clicks"`
	UniqueVisitors int64      `json:"unique_visitors"`
	LastClickAt    *time.Time `json:"last_click_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	DaysRemaining  *int       `json:"days_remaining,omitempty"` // Calculated field
}

// CreateURLRequest represents the request payload for creating a short URL.
// The camelCase keys are accepted for callers of the legacy surface; the
// snake_case keys win when both are present.
type CreateURLRequest struct {
	URL               string `json:"url" binding:"required"`
	CustomAlias       string `json:"custom_alias,omitempty"`
	CustomAliasLegacy string `json:"customAlias,omitempty"`
	ExpiryDays        *int   `json:"expiry_days,omitempty"`
	ExpiryDaysLegacy  *int   `json:"expiryDays,omitempty"`
}

// Alias returns the requested custom alias, if any
func (r *CreateURLRequest) Alias() string {
	if r.CustomAlias != "" {
		return r.CustomAlias
	}
	return r.CustomAliasLegacy
}

// RequestedExpiryDays returns the requested TTL in days, if any
func (r *CreateURLRequest) RequestedExpiryDays() *int {
	if r.ExpiryDays != nil {
		return r.ExpiryDays
	}
	return r.ExpiryDaysLegacy
}

// CreateURLResponse represents the response after creating a short URL
type CreateURLResponse struct {
	ShortCode     string     `json:"short_code"`
	ShortURL      string     `json:"short_url"` // Full shortened URL on the redirect origin
	LongURL       string     `json:"long_url"`
	IsCustomAlias bool       `json:"is_custom_alias"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	WasReused     bool       `json:"was_reused"`
	CreatedAt     time.Time  `json:"created_at"`
}

// URLInfoResponse is the API (non-redirect) resolution shape
type URLInfoResponse struct {
	LongURL        string     `json:"long_url"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	AccessCount    int64      `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

// DeleteURLResponse confirms a soft deletion
type DeleteURLResponse struct {
	ShortCode string    `json:"short_code"`
	DeletedAt time.Time `json:"deletedAt"`
}

// UpdateExpiryRequest carries the new expiry; a null or absent
// expires_at removes the expiry where the caller's tier permits.
type UpdateExpiryRequest struct {
	ExpiresAt *time.Time `json:"expires_at"`
}

// CheckAliasResponse reports alias availability with fallback suggestions
type CheckAliasResponse struct {
	Available   bool     `json:"available"`
	Suggestions []string `json:"suggestions"`
}

// BulkDeleteRequest names the codes to soft-delete in one call
type BulkDeleteRequest struct {
	Codes []string `json:"codes" binding:"required"`
}

// BulkDeleteFailure reports a single code that could not be deleted
type BulkDeleteFailure struct {
	ShortCode string `json:"short_code"`
	Reason    string `json:"reason"`
}

// BulkDeleteResponse reports per-element outcomes; the batch is not atomic
type BulkDeleteResponse struct {
	Deleted []string            `json:"deleted"`
	Failed  []BulkDeleteFailure `json:"failed"`
}

// ListURLsRequest carries the filter/sort/pagination contract for listings.
// Pointer fields distinguish "absent" from a zero value.
type ListURLsRequest struct {
	Search         string     `form:"search"`
	IsCustomAlias  *bool      `form:"is_custom_alias"`
	HasExpiry      *bool      `form:"has_expiry"`
	IsExpired      *bool      `form:"is_expired"`
	CreatedFrom    *time.Time `form:"created_from" time_format:"2006-01-02T15:04:05Z07:00"`
	CreatedTo      *time.Time `form:"created_to" time_format:"2006-01-02T15:04:05Z07:00"`
	MinAccessCount *int64     `form:"min_access_count"`
	MaxAccessCount *int64     `form:"max_access_count"`
	SortBy         string     `form:"sort_by"`
	SortOrder      string     `form:"sort_order"`
	Page           int        `form:"page"`
	PageSize       int        `form:"page_size"`
}

// PageBounds normalizes pagination input: pages start at 1, the page
// size defaults to 20 and is capped at 100
func (r *ListURLsRequest) PageBounds() (page, pageSize int) {
	page = r.Page
	if page < 1 {
		page = 1
	}

	pageSize = r.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	return page, pageSize
}

// PaginationMeta is the wire-exact pagination block for listings
type PaginationMeta struct {
	CurrentPage int   `json:"currentPage"`
	PageSize    int   `json:"pageSize"`
	TotalItems  int64 `json:"totalItems"`
	TotalPages  int   `json:"totalPages"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

// PagedURLs bundles one page of mappings with its pagination meta
type PagedURLs struct {
	Items      []URLMapping
	Pagination PaginationMeta
}

// NewPaginationMeta derives the meta block from a total row count
func NewPaginationMeta(page, pageSize int, totalItems int64) PaginationMeta {
	totalPages := int((totalItems + int64(pageSize) - 1) / int64(pageSize))
	return PaginationMeta{
		CurrentPage: page,
		PageSize:    pageSize,
		TotalItems:  totalItems,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}
