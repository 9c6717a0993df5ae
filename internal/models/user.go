package models

import (
	"time"

	"gorm.io/gorm"
)

// User is an account row owned by the auth collaborator. The core only
// persists it; password hashing and verification happen elsewhere.
type User struct {
	BaseModel

	Username     string `gorm:"not null;uniqueIndex;size:255" json:"username"`
	PasswordHash string `gorm:"not null;size:255" json:"-"`
	IsAdmin      bool   `gorm:"default:false" json:"is_admin"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// Session is an opaque auth session row. Expired rows are swept periodically.
type Session struct {
	BaseModel

	UserID    ULID      `gorm:"type:varchar(26);not null;index" json:"user_id"`
	Token     string    `gorm:"not null;uniqueIndex;size:64" json:"-"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}

// TableName returns the table name for Session.
func (Session) TableName() string {
	return "sessions"
}

// IsExpired reports whether the session has passed its expiry.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// BeforeCreate is a GORM hook that validates the session.
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if err := s.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if s.Token == "" {
		return ErrTokenRequired
	}
	return nil
}
