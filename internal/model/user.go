package model

import "time"

// User is the authenticated identity mirrored into a client's session.
type User struct {
	UID   string
	Email string
}

// Account is the identity provider's record behind a User.
type Account struct {
	UID             string `gorm:"primaryKey;size:36"`
	Email           string `gorm:"uniqueIndex;size:255"`
	PasswordHash    string
	Provider        string `gorm:"size:32;default:password"`
	ProviderSubject string `gorm:"index;size:255"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// User returns the public identity of the account.
func (a Account) User() *User {
	return &User{UID: a.UID, Email: a.Email}
}

// Profile stores the user-editable part of a user, one row per uid.
type Profile struct {
	UID       string `gorm:"primaryKey;size:36"`
	Username  string `gorm:"size:64"`
	Email     string `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName keeps profiles in the "users" collection.
func (Profile) TableName() string {
	return "users"
}
