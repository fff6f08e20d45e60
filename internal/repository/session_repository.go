package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"todolist/internal/model"
)

// SessionRepository keeps the records behind issued session tokens.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, record *model.SessionRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*model.SessionRecord, error) {
	var record model.SessionRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// Revoke marks the session as signed out. Revoking twice is a no-op.
func (r *SessionRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	if err := r.db.WithContext(ctx).Model(&model.SessionRecord{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at).Error; err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAllForUser signs every session of the user out.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, uid string, at time.Time) error {
	if err := r.db.WithContext(ctx).Model(&model.SessionRecord{}).
		Where("uid = ? AND revoked_at IS NULL", uid).
		Update("revoked_at", at).Error; err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions that expired or were revoked before now.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ? OR revoked_at IS NOT NULL", now).Delete(&model.SessionRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
