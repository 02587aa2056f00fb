package auth

import (
	"sort"

	"github.com/upb/yapi/models"
)

// EffectivePermissions returns the permissions granted by role. Groups never
// contribute permissions; a missing or soft-deleted role grants nothing.
func EffectivePermissions(role *models.Role) models.PermissionSet {
	set := models.PermissionSet{}
	if role == nil || role.Deleted {
		return set
	}
	for id, p := range role.Permissions {
		if p.Deleted {
			continue
		}
		set[id] = p
	}
	return set
}

// HasPermission reports whether role grants slug
func HasPermission(role *models.Role, slug string) bool {
	return EffectivePermissions(role).Has(slug)
}

// BuildPayload derives the public token payload of user from its loaded
// role, groups and attributes.
func BuildPayload(user *models.User) models.TokenPayload {
	payload := models.TokenPayload{
		ID:         user.ID,
		Username:   user.Username,
		Email:      user.Email,
		Deleted:    user.Deleted,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
		Role:       models.RoleClaim{Permissions: []string{}},
		Groups:     make([]models.GroupRef, 0, len(user.Groups)),
		Attributes: make(map[string]string, len(user.Attributes)),
	}

	if user.Role != nil {
		payload.Role.Name = user.Role.Name
		payload.Role.Slug = user.Role.Slug
		payload.Role.Permissions = EffectivePermissions(user.Role).Slugs()
	}

	payload.Groups = append(payload.Groups, user.Groups...)
	sort.Slice(payload.Groups, func(i, j int) bool { return payload.Groups[i].Slug < payload.Groups[j].Slug })

	for name, value := range user.Attributes {
		payload.Attributes[name] = value
	}
	return payload
}
