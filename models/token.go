package models

import (
	"time"

	"github.com/google/uuid"
)

// UserToken is the stored record of an issued token. Only the SHA-256 hash of
// the signed token is kept. At most one token per user has IsValid set.
type UserToken struct {
	ID        uuid.UUID `json:"id" db:"id"` // JWT ID of the signed token
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	TokenHash string    `json:"-" db:"token_hash"`
	IsValid   bool      `json:"is_valid" db:"is_valid"`
	IssuedAt  time.Time `json:"issued_at" db:"issued_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// TableName returns the table name for the UserToken model
func (UserToken) TableName() string {
	return "user_tokens"
}

// IsExpired reports whether the token lifetime has passed at now
func (t *UserToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// RoleClaim is the role section of a token payload
type RoleClaim struct {
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	Permissions []string `json:"permissions"`
}

// TokenPayload is the public identity snapshot embedded in issued tokens.
// It never carries password material.
type TokenPayload struct {
	ID         uuid.UUID         `json:"id"`
	Username   string            `json:"username"`
	Email      string            `json:"email"`
	Deleted    bool              `json:"deleted"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Role       RoleClaim         `json:"role"`
	Groups     []GroupRef        `json:"groups"`
	Attributes map[string]string `json:"attributes"`
}
