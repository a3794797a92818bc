package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abdoElHodaky/obcore/internal/apperrors"
	"github.com/abdoElHodaky/obcore/internal/model"
)

// UserRepository is the gorm-backed repository for User rows, kept on gorm
// like the rest of the store package so the Persistent Store's atomic
// multi-row transactions can span users, orders, and trades uniformly.
type UserRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *gorm.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

// GetOrCreate resolves a user row for handle, creating one if absent.
func (r *UserRepository) GetOrCreate(ctx context.Context, handle string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("handle = ?", handle).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "lookup user")
	}

	user = model.User{ID: uuid.New().String(), Handle: handle}
	if err := r.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "create user")
	}
	return &user, nil
}

// GetByID fetches a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreUnavailable, "get user")
	}
	return &user, nil
}
