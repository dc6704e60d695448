package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/linkforge/linkforge/internal/domain"
	"github.com/linkforge/linkforge/internal/repository"
)

// analyticsRepository reads click aggregates materialized by the
// external analytics pipeline
type analyticsRepository struct {
	db *gorm.DB
}

// NewAnalyticsRepository creates a new PostgreSQL analytics repository
func NewAnalyticsRepository(db *gorm.DB) repository.AnalyticsRepository {
	return &analyticsRepository{db: db}
}

// TotalsFor returns the aggregate row for a code. Codes the pipeline
// has not processed yet get a zero-valued aggregate so stats endpoints
// can always render.
func (r *analyticsRepository) TotalsFor(ctx context.Context, shortCode string) (*domain.AnalyticsAggregate, error) {
	var agg domain.AnalyticsAggregate

	result := r.db.WithContext(ctx).
		Where("short_code = ?", shortCode).
		First(&agg)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return &domain.AnalyticsAggregate{ShortCode: shortCode}, nil
		}
		return nil, domain.NewInternalError(result.Error)
	}

	return &agg, nil
}
