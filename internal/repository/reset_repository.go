package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"todolist/internal/model"
)

// ResetRepository stores password reset tokens.
type ResetRepository struct {
	db *gorm.DB
}

func NewResetRepository(db *gorm.DB) *ResetRepository {
	return &ResetRepository{db: db}
}

func (r *ResetRepository) Create(ctx context.Context, reset *model.PasswordReset) error {
	if err := r.db.WithContext(ctx).Create(reset).Error; err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (r *ResetRepository) Find(ctx context.Context, token string) (*model.PasswordReset, error) {
	var reset model.PasswordReset
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&reset).Error; err != nil {
		return nil, err
	}
	return &reset, nil
}

// MarkUsed consumes the token. It returns gorm.ErrRecordNotFound when the
// token is unknown or was already used.
func (r *ResetRepository) MarkUsed(ctx context.Context, token string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.PasswordReset{}).
		Where("token = ? AND used_at IS NULL", token).
		Update("used_at", at)
	if res.Error != nil {
		return fmt.Errorf("use password reset: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ResetRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ? OR used_at IS NOT NULL", now).Delete(&model.PasswordReset{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired password resets: %w", res.Error)
	}
	return res.RowsAffected, nil
}
