package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is the stored credential of an account. The password is only ever held
// as a salted hash together with the salt version it was produced under.
type User struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Username     string     `json:"username,omitempty" db:"username"` // immutable once set
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	SaltVersion  string     `json:"-" db:"salt_version"`
	RoleID       uuid.UUID  `json:"role_id" db:"role_id"`
	Deleted      bool       `json:"deleted" db:"deleted"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`

	// Associations, populated explicitly by the repositories
	Role       *Role             `json:"role,omitempty" db:"-"`
	Groups     []GroupRef        `json:"groups,omitempty" db:"-"`
	Attributes map[string]string `json:"attributes,omitempty" db:"-"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new User instance with the given role
func NewUser(username, email string, roleID uuid.UUID) *User {
	now := time.Now().UTC()
	return &User{
		ID:         uuid.New(),
		Username:   strings.TrimSpace(username),
		Email:      strings.TrimSpace(email),
		RoleID:     roleID,
		CreatedAt:  now,
		UpdatedAt:  now,
		Attributes: map[string]string{},
	}
}

// HasUsername reports whether the immutable username has been assigned
func (u *User) HasUsername() bool {
	return u.Username != ""
}

// Touch bumps the modification timestamp
func (u *User) Touch() {
	u.UpdatedAt = time.Now().UTC()
}

// Attribute is a free-form name/value pair attached to a user
type Attribute struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Value     string    `json:"value" db:"value"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Attribute model
func (Attribute) TableName() string {
	return "user_attributes"
}
