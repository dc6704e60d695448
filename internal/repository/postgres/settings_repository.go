package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/linkforge/linkforge/internal/domain"
	"github.com/linkforge/linkforge/internal/repository"
)

// settingsRepository implements NotificationSettingsRepository for
// PostgreSQL
type settingsRepository struct {
	db *gorm.DB
}

// NewNotificationSettingsRepository creates a new PostgreSQL settings
// repository
func NewNotificationSettingsRepository(db *gorm.DB) repository.NotificationSettingsRepository {
	return &settingsRepository{db: db}
}

// FindByUserID returns the user's webhook settings, or (nil, nil) when
// the user never configured any. A missing row is not an error; it
// just means nothing gets delivered.
func (r *settingsRepository) FindByUserID(ctx context.Context, userID string) (*domain.NotificationSettings, error) {
	var s domain.NotificationSettings

	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&s)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, domain.NewInternalError(result.Error)
	}

	return &s, nil
}
