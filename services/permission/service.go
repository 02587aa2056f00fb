// Package permission resolves what a user may do: the permissions of the
// user's single role, the groups the user belongs to and the token payload
// built from both. Role lookups are served from an LRU+TTL cache that is
// invalidated whenever a role's permission set changes.
package permission

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/yapi/internal/auth"
	"github.com/upb/yapi/models"
	"github.com/upb/yapi/repositories"
	"github.com/upb/yapi/services"
	"go.uber.org/zap"
)

// Default cache sizing
const (
	DefaultCacheSize = 256
	DefaultCacheTTL  = 5 * time.Minute
)

// Resolver implements services.PayloadLoader on top of the repositories
type Resolver struct {
	users      repositories.UserRepository
	roles      repositories.RoleRepository
	groups     repositories.GroupRepository
	attributes repositories.AttributeRepository
	cache      *RoleCache
	logger     *zap.Logger
}

var _ services.PayloadLoader = (*Resolver)(nil)

// NewResolver creates a resolver. A nil cache disables caching.
func NewResolver(repos *repositories.Repositories, cache *RoleCache, logger *zap.Logger) *Resolver {
	return &Resolver{
		users:      repos.Users,
		roles:      repos.Roles,
		groups:     repos.Groups,
		attributes: repos.Attributes,
		cache:      cache,
		logger:     logger,
	}
}

// Role returns the role with its permission set loaded
func (r *Resolver) Role(ctx context.Context, roleID uuid.UUID) (*models.Role, error) {
	var gen uint64
	if r.cache != nil {
		if role := r.cache.Get(roleID); role != nil {
			return role, nil
		}
		gen = r.cache.Generation()
	}

	role, err := r.roles.GetByID(ctx, roleID)
	if err != nil {
		return nil, services.FromRepository(err, services.ErrRoleNotFound, nil)
	}
	perms, err := r.roles.Permissions(ctx, roleID)
	if err != nil {
		return nil, services.FromRepository(err, services.ErrRoleNotFound, nil)
	}
	role.Permissions = perms

	if r.cache != nil {
		r.cache.SetIfCurrent(role, gen)
	}
	return role, nil
}

// LoadUser populates the role, groups and attributes of user
func (r *Resolver) LoadUser(ctx context.Context, user *models.User) error {
	role, err := r.Role(ctx, user.RoleID)
	if err != nil {
		return err
	}

	groups, err := r.groups.ListForUser(ctx, user.ID)
	if err != nil {
		return services.FromRepository(err, nil, nil)
	}

	attrs, err := r.attributes.ListForUser(ctx, user.ID)
	if err != nil {
		return services.FromRepository(err, nil, nil)
	}

	user.Role = role
	user.Groups = groups
	user.Attributes = attrs
	return nil
}

// EffectivePermissions returns the permissions granted to user through its role
func (r *Resolver) EffectivePermissions(ctx context.Context, user *models.User) (models.PermissionSet, error) {
	role, err := r.Role(ctx, user.RoleID)
	if err != nil {
		return nil, err
	}
	return auth.EffectivePermissions(role), nil
}

// HasPermission reports whether the live user with userID holds slug.
// Deleted or unknown users hold nothing.
func (r *Resolver) HasPermission(ctx context.Context, userID uuid.UUID, slug string) (bool, error) {
	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return false, nil
		}
		return false, services.FromRepository(err, nil, nil)
	}
	if user.Deleted {
		return false, nil
	}

	role, err := r.Role(ctx, user.RoleID)
	if err != nil {
		return false, err
	}

	allowed := auth.HasPermission(role, slug)
	if !allowed {
		r.logger.Debug("permission denied",
			zap.String("user_id", userID.String()),
			zap.String("permission", slug))
	}
	return allowed, nil
}

// TokenPayload loads user's associations and returns its public payload
func (r *Resolver) TokenPayload(ctx context.Context, user *models.User) (models.TokenPayload, error) {
	if err := r.LoadUser(ctx, user); err != nil {
		return models.TokenPayload{}, err
	}
	return auth.BuildPayload(user), nil
}

// InvalidateRole implements services.PayloadLoader
func (r *Resolver) InvalidateRole(roleID uuid.UUID) {
	if r.cache != nil {
		r.cache.Invalidate(roleID)
	}
}

// InvalidatePermission implements services.PayloadLoader
func (r *Resolver) InvalidatePermission(permissionID uuid.UUID) {
	if r.cache != nil {
		r.cache.InvalidatePermission(permissionID)
	}
}
