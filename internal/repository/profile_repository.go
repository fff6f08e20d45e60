package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"todolist/internal/model"
)

// ProfileRepository handles the "users" collection.
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) Create(ctx context.Context, profile *model.Profile) error {
	if err := r.db.WithContext(ctx).Create(profile).Error; err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

func (r *ProfileRepository) FindByUID(ctx context.Context, uid string) (*model.Profile, error) {
	var profile model.Profile
	if err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateUsername merges the new username into the profile, leaving the
// other columns untouched.
func (r *ProfileRepository) UpdateUsername(ctx context.Context, uid, username string) error {
	res := r.db.WithContext(ctx).Model(&model.Profile{}).Where("uid = ?", uid).Update("username", username)
	if res.Error != nil {
		return fmt.Errorf("update username: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
