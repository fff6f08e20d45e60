package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"todolist/internal/model"
	"todolist/internal/repository"
)

const maxUsernameLength = 64

// ProfileInput is the data stored when a profile is created.
type ProfileInput struct {
	Username string
	Email    string
}

// ProfileService reads and writes the "users" collection.
type ProfileService struct {
	repo *repository.ProfileRepository
}

func NewProfileService(repo *repository.ProfileRepository) *ProfileService {
	return &ProfileService{repo: repo}
}

func (s *ProfileService) CreateProfile(ctx context.Context, uid string, input ProfileInput) error {
	profile := &model.Profile{
		UID:      uid,
		Username: strings.TrimSpace(input.Username),
		Email:    strings.TrimSpace(input.Email),
	}
	if err := s.repo.Create(ctx, profile); err != nil {
		return persistenceError("create profile", err)
	}
	return nil
}

// UpdateUsername changes only the username of the profile.
func (s *ProfileService) UpdateUsername(ctx context.Context, uid, username string) error {
	username = strings.TrimSpace(username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength {
		return ErrInvalidUsername
	}
	if err := s.repo.UpdateUsername(ctx, uid, username); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProfileNotFound
		}
		return persistenceError("update username", err)
	}
	return nil
}

func (s *ProfileService) GetProfile(ctx context.Context, uid string) (*model.Profile, error) {
	profile, err := s.repo.FindByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, persistenceError("get profile", err)
	}
	return profile, nil
}

// EnsureProfile creates a profile for uid unless one exists.
func (s *ProfileService) EnsureProfile(ctx context.Context, uid string, input ProfileInput) error {
	_, err := s.GetProfile(ctx, uid)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrProfileNotFound):
		return s.CreateProfile(ctx, uid, input)
	default:
		return err
	}
}
