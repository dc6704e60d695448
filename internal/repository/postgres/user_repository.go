package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/linkforge/linkforge/internal/domain"
	"github.com/linkforge/linkforge/internal/repository"
)

// userRepository implements the UserRepository interface for PostgreSQL
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(db *gorm.DB) repository.UserRepository {
	return &userRepository{db: db}
}

// FindByID retrieves a user by identity
func (r *userRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User

	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&u)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, domain.NewInternalError(result.Error)
	}

	return &u, nil
}

// FindByAPIKeyHash retrieves a user by the SHA-256 hex digest of an API
// key. Only the digest is ever stored or compared.
func (r *userRepository) FindByAPIKeyHash(ctx context.Context, hash string) (*domain.User, error) {
	var u domain.User

	result := r.db.WithContext(ctx).
		Where("api_key_hash = ?", hash).
		First(&u)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, domain.NewInternalError(result.Error)
	}

	return &u, nil
}
