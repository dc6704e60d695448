package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/linkforge/linkforge/internal/domain"
	"github.com/linkforge/linkforge/internal/repository"
)

// sortColumns whitelists the columns list queries may order by. Client
// input never reaches the ORDER BY clause directly.
var sortColumns = map[string]string{
	"created_at":       "created_at",
	"access_count":     "access_count",
	"expires_at":       "expires_at",
	"last_accessed_at": "last_accessed_at",
	"short_code":       "short_code",
}

// urlRepository implements the URLRepository interface for PostgreSQL
type urlRepository struct {
	db *gorm.DB
}

// NewURLRepository creates a new PostgreSQL URL repository
func NewURLRepository(db *gorm.DB) repository.URLRepository {
	return &urlRepository{db: db}
}

// Create inserts a new URL mapping into the database.
// The partial unique index on active short codes turns concurrent
// inserts of the same code into a duplicated-key error, which callers
// rely on for race-safe code allocation.
func (r *urlRepository) Create(ctx context.Context, m *domain.URLMapping) error {
	result := r.db.WithContext(ctx).Create(m)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return domain.ErrAliasTaken
		}
		return domain.NewInternalError(result.Error)
	}
	return nil
}

// FindByCode retrieves a mapping by its short code.
// Soft-deleted rows are invisible here; expiry is the caller's concern
// so that expired rows can still be reported as 410 rather than 404.
func (r *urlRepository) FindByCode(ctx context.Context, shortCode string) (*domain.URLMapping, error) {
	var m domain.URLMapping

	result := r.db.WithContext(ctx).
		Where("short_code = ? AND is_deleted = ?", shortCode, false).
		First(&m)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrURLNotFound
		}
		return nil, domain.NewInternalError(result.Error)
	}

	return &m, nil
}

// FindActiveByHash looks up a live mapping for the normalized-URL hash
// within one owner scope. Anonymous rows (owner_id IS NULL) and owned
// rows never deduplicate against each other.
func (r *urlRepository) FindActiveByHash(ctx context.Context, hash string, owner *string) (*domain.URLMapping, error) {
	var m domain.URLMapping

	q := r.db.WithContext(ctx).
		Where("long_url_hash = ? AND is_deleted = ?", hash, false).
		Where("expires_at IS NULL OR expires_at > ?", time.Now())

	if owner == nil {
		q = q.Where("owner_id IS NULL")
	} else {
		q = q.Where("owner_id = ?", *owner)
	}

	result := q.Order("created_at DESC").First(&m)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrURLNotFound
		}
		return nil, domain.NewInternalError(result.Error)
	}

	return &m, nil
}

// UpdateExpiry sets or clears the expiry timestamp of an active mapping
func (r *urlRepository) UpdateExpiry(ctx context.Context, shortCode string, expiresAt *time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&domain.URLMapping{}).
		Where("short_code = ? AND is_deleted = ?", shortCode, false).
		Update("expires_at", expiresAt)

	if result.Error != nil {
		return domain.NewInternalError(result.Error)
	}

	if result.RowsAffected == 0 {
		return domain.ErrURLNotFound
	}

	return nil
}

// SoftDelete marks a mapping deleted and stamps deleted_at.
// Deleting an already-deleted code affects zero rows and reports
// not-found, which keeps repeated deletes idempotent at the API layer.
func (r *urlRepository) SoftDelete(ctx context.Context, shortCode string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.URLMapping{}).
		Where("short_code = ? AND is_deleted = ?", shortCode, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": time.Now(),
		})

	if result.Error != nil {
		return domain.NewInternalError(result.Error)
	}

	if result.RowsAffected == 0 {
		return domain.ErrURLNotFound
	}

	return nil
}

// BulkSoftDelete deletes each code in turn, reporting per-element
// outcomes. The batch is deliberately not atomic: one missing code must
// not roll back the rest.
func (r *urlRepository) BulkSoftDelete(ctx context.Context, shortCodes []string) ([]string, []string, error) {
	deleted := make([]string, 0, len(shortCodes))
	failed := make([]string, 0)

	for _, code := range shortCodes {
		if err := r.SoftDelete(ctx, code); err != nil {
			if errors.Is(err, domain.ErrURLNotFound) {
				failed = append(failed, code)
				continue
			}
			return deleted, failed, err
		}
		deleted = append(deleted, code)
	}

	return deleted, failed, nil
}

// IncrementAccess atomically increments the access counter.
// Uses SQL UPDATE to ensure thread-safety without SELECT-then-UPDATE race condition.
func (r *urlRepository) IncrementAccess(ctx context.Context, shortCode string) error {
	now := time.Now()

	result := r.db.WithContext(ctx).
		Model(&domain.URLMapping{}).
		Where("short_code = ? AND is_deleted = ?", shortCode, false).
		Updates(map[string]interface{}{
			"access_count":     gorm.Expr("access_count + ?", 1),
			"last_accessed_at": now,
		})

	if result.Error != nil {
		return domain.NewInternalError(result.Error)
	}

	if result.RowsAffected == 0 {
		return domain.ErrURLNotFound
	}

	return nil
}

// ListByOwner pages through one owner's mappings with filtering and
// whitelisted sorting. Count and page run in one transaction so the
// pagination metadata matches the returned slice.
func (r *urlRepository) ListByOwner(ctx context.Context, owner *string, req *domain.ListURLsRequest) (*domain.PagedURLs, error) {
	page, pageSize := req.PageBounds()

	var (
		items []domain.URLMapping
		total int64
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := applyListFilters(tx.Model(&domain.URLMapping{}), owner, req)

		if err := q.Count(&total).Error; err != nil {
			return err
		}

		return q.
			Order(orderClause(req.SortBy, req.SortOrder)).
			Offset((page - 1) * pageSize).
			Limit(pageSize).
			Find(&items).Error
	})
	if err != nil {
		return nil, domain.NewInternalError(err)
	}

	return &domain.PagedURLs{
		Items:      items,
		Pagination: domain.NewPaginationMeta(page, pageSize, total),
	}, nil
}

// applyListFilters translates the list request into WHERE clauses.
// Every filter is optional; absent filters add no conditions.
func applyListFilters(q *gorm.DB, owner *string, req *domain.ListURLsRequest) *gorm.DB {
	q = q.Where("is_deleted = ?", false)

	if owner == nil {
		q = q.Where("owner_id IS NULL")
	} else {
		q = q.Where("owner_id = ?", *owner)
	}

	if req.Search != "" {
		pattern := "%" + escapeLike(req.Search) + "%"
		q = q.Where("(long_url ILIKE ? OR short_code ILIKE ?)", pattern, pattern)
	}

	if req.IsCustomAlias != nil {
		q = q.Where("is_custom_alias = ?", *req.IsCustomAlias)
	}

	if req.HasExpiry != nil {
		if *req.HasExpiry {
			q = q.Where("expires_at IS NOT NULL")
		} else {
			q = q.Where("expires_at IS NULL")
		}
	}

	if req.IsExpired != nil {
		now := time.Now()
		if *req.IsExpired {
			q = q.Where("expires_at IS NOT NULL AND expires_at <= ?", now)
		} else {
			q = q.Where("expires_at IS NULL OR expires_at > ?", now)
		}
	}

	if req.CreatedFrom != nil {
		q = q.Where("created_at >= ?", *req.CreatedFrom)
	}

	if req.CreatedTo != nil {
		q = q.Where("created_at <= ?", *req.CreatedTo)
	}

	if req.MinAccessCount != nil {
		q = q.Where("access_count >= ?", *req.MinAccessCount)
	}

	if req.MaxAccessCount != nil {
		q = q.Where("access_count <= ?", *req.MaxAccessCount)
	}

	return q
}

// orderClause resolves a sort request against the column whitelist,
// falling back to newest-first
func orderClause(sortBy, sortOrder string) string {
	column, ok := sortColumns[sortBy]
	if !ok {
		column = "created_at"
	}

	direction := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		direction = "ASC"
	}

	return column + " " + direction
}

// escapeLike neutralizes LIKE metacharacters in user-supplied search
// terms
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// ExistsByShortCode checks if an active mapping holds the code without loading the full record.
// More efficient than FindByCode when you only need an existence check.
func (r *urlRepository) ExistsByShortCode(ctx context.Context, shortCode string) (bool, error) {
	var count int64

	result := r.db.WithContext(ctx).
		Model(&domain.URLMapping{}).
		Where("short_code = ? AND is_deleted = ?", shortCode, false).
		Count(&count)

	if result.Error != nil {
		return false, domain.NewInternalError(result.Error)
	}

	return count > 0, nil
}

// FindExpiring returns active mappings whose expiry falls inside
// [from, to). The sweeper walks this window forward between runs so
// each expiry is observed once.
func (r *urlRepository) FindExpiring(ctx context.Context, from, to time.Time) ([]domain.URLMapping, error) {
	var items []domain.URLMapping

	result := r.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		Where("expires_at IS NOT NULL AND expires_at >= ? AND expires_at < ?", from, to).
		Order("expires_at ASC").
		Find(&items)

	if result.Error != nil {
		return nil, domain.NewInternalError(result.Error)
	}

	return items, nil
}

// FindSoftDeletedOlderThan returns soft-deleted mappings whose deletion
// predates the cutoff, oldest first
func (r *urlRepository) FindSoftDeletedOlderThan(ctx context.Context, cutoff time.Time) ([]domain.URLMapping, error) {
	var items []domain.URLMapping

	result := r.db.WithContext(ctx).
		Where("is_deleted = ? AND deleted_at < ?", true, cutoff).
		Order("deleted_at ASC").
		Find(&items)

	if result.Error != nil {
		return nil, domain.NewInternalError(result.Error)
	}

	return items, nil
}

// HardDelete permanently removes rows. Only soft-deleted rows qualify;
// an active mapping can never be hard-deleted directly.
func (r *urlRepository) HardDelete(ctx context.Context, shortCodes []string) (int64, error) {
	if len(shortCodes) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Where("short_code IN ? AND is_deleted = ?", shortCodes, true).
		Delete(&domain.URLMapping{})

	if result.Error != nil {
		return 0, domain.NewInternalError(result.Error)
	}

	return result.RowsAffected, nil
}
