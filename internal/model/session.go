package model

import "time"

// SessionRecord backs an issued session token. Revoked or expired records
// no longer restore a session.
type SessionRecord struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UID       string    `gorm:"index;size:36"`
	ExpiresAt time.Time `gorm:"index"`
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Active reports whether the record can still back a session at now.
func (s SessionRecord) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// PasswordReset is a single-use token sent by mail to reset a password.
type PasswordReset struct {
	Token     string    `gorm:"primaryKey;size:64"`
	UID       string    `gorm:"index;size:36"`
	ExpiresAt time.Time `gorm:"index"`
	UsedAt    *time.Time
	CreatedAt time.Time
}
