package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"todolist/internal/model"
)

// AccountRepository stores identity provider accounts.
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account. A taken email surfaces as gorm.ErrDuplicatedKey.
func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	account.Email = normalizeEmail(account.Email)
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	var account model.Account
	if err := r.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) FindByUID(ctx context.Context, uid string) (*model.Account, error) {
	var account model.Account
	if err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByProvider looks an account up by its federated identity.
func (r *AccountRepository) FindByProvider(ctx context.Context, provider, subject string) (*model.Account, error) {
	var account model.Account
	if err := r.db.WithContext(ctx).Where("provider = ? AND provider_subject = ?", provider, subject).
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// LinkProvider attaches a federated identity to an existing account.
func (r *AccountRepository) LinkProvider(ctx context.Context, uid, provider, subject string) error {
	updates := map[string]interface{}{
		"provider":         provider,
		"provider_subject": subject,
	}
	if err := r.db.WithContext(ctx).Model(&model.Account{}).Where("uid = ?", uid).Updates(updates).Error; err != nil {
		return fmt.Errorf("link provider: %w", err)
	}
	return nil
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, uid, hash string) error {
	res := r.db.WithContext(ctx).Model(&model.Account{}).Where("uid = ?", uid).Update("password_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
