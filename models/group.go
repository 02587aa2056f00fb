package models

import (
	"time"

	"github.com/google/uuid"
)

// Group is a named collection of users. Groups carry no permissions.
type Group struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Slug        string    `json:"slug" db:"slug"`
	Description string    `json:"description,omitempty" db:"description"`
	Image       string    `json:"image,omitempty" db:"image"`
	Protected   bool      `json:"protected" db:"protected"`
	Deleted     bool      `json:"deleted" db:"deleted"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Group model
func (Group) TableName() string {
	return "member_groups"
}

// NewGroup creates a new Group instance
func NewGroup(name, slug, description string, protected bool) *Group {
	now := time.Now().UTC()
	return &Group{
		ID:          uuid.New(),
		Name:        name,
		Slug:        slug,
		Description: description,
		Protected:   protected,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Ref returns the compact reference embedded in token payloads
func (g *Group) Ref() GroupRef {
	return GroupRef{ID: g.ID, Name: g.Name, Slug: g.Slug}
}

// GroupRef identifies a group membership
type GroupRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}
