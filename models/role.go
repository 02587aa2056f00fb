package models

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Permission is a named capability identified by its slug
type Permission struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	Deleted   bool      `json:"deleted" db:"deleted"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Permission model
func (Permission) TableName() string {
	return "permissions"
}

// NewPermission creates a new Permission instance
func NewPermission(name, slug string) *Permission {
	now := time.Now().UTC()
	return &Permission{
		ID:        uuid.New(),
		Name:      name,
		Slug:      slug,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// PermissionSet is a set of permissions keyed by permission ID
type PermissionSet map[uuid.UUID]Permission

// NewPermissionSet builds a set from the given permissions
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set.Add(p)
	}
	return set
}

// Add inserts p, replacing any permission with the same ID
func (s PermissionSet) Add(p Permission) {
	s[p.ID] = p
}

// Remove deletes the permission with the given ID
func (s PermissionSet) Remove(id uuid.UUID) {
	delete(s, id)
}

// Has reports whether the set grants slug
func (s PermissionSet) Has(slug string) bool {
	for _, p := range s {
		if p.Slug == slug {
			return true
		}
	}
	return false
}

// Slugs returns the sorted, de-duplicated permission slugs
func (s PermissionSet) Slugs() []string {
	seen := make(map[string]struct{}, len(s))
	slugs := make([]string, 0, len(s))
	for _, p := range s {
		if _, ok := seen[p.Slug]; ok {
			continue
		}
		seen[p.Slug] = struct{}{}
		slugs = append(slugs, p.Slug)
	}
	sort.Strings(slugs)
	return slugs
}

// List returns the permissions ordered by slug
func (s PermissionSet) List() []Permission {
	out := make([]Permission, 0, len(s))
	for _, p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// MarshalJSON renders the set as a list ordered by slug
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

// Role groups permissions; every user holds exactly one role
type Role struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	Name        string        `json:"name" db:"name"`
	Slug        string        `json:"slug" db:"slug"`
	Description string        `json:"description,omitempty" db:"description"`
	Deleted     bool          `json:"deleted" db:"deleted"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
	Permissions PermissionSet `json:"permissions" db:"-"`
}

// TableName returns the table name for the Role model
func (Role) TableName() string {
	return "roles"
}

// NewRole creates a new Role with an empty permission set
func NewRole(name, slug, description string) *Role {
	now := time.Now().UTC()
	return &Role{
		ID:          uuid.New(),
		Name:        name,
		Slug:        slug,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
		Permissions: PermissionSet{},
	}
}
