package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upb/yapi/models"
	"github.com/upb/yapi/repositories"
	"go.uber.org/zap"
)

// CreateRoleInput describes a new role
type CreateRoleInput struct {
	Name        string   `validate:"required,max=128"`
	Slug        string   `validate:"required,slug,max=128"`
	Description string   `validate:"max=1024"`
	Permissions []string `validate:"dive,slug"` // permission slugs granted at creation
}

// CreatePermissionInput describes a new permission
type CreatePermissionInput struct {
	Name string `validate:"required,max=128"`
	Slug string `validate:"required,slug,max=128"`
}

// RoleService manages roles, permissions and the grants between them
type RoleService struct {
	txMgr   repositories.TransactionManager
	repos   *repositories.Repositories
	loader  PayloadLoader
	auditor Auditor
	logger  *zap.Logger
	now     func() time.Time
}

// NewRoleService creates a new RoleService. A nil auditor discards audit entries.
func NewRoleService(
	txMgr repositories.TransactionManager,
	repos *repositories.Repositories,
	loader PayloadLoader,
	auditor Auditor,
	logger *zap.Logger,
) *RoleService {
	if auditor == nil {
		auditor = NopAuditor{}
	}
	return &RoleService{
		txMgr:   txMgr,
		repos:   repos,
		loader:  loader,
		auditor: auditor,
		logger:  logger,
		now:     time.Now,
	}
}

// ListRoles returns every role with its permissions loaded
func (s *RoleService) ListRoles(ctx context.Context) ([]*models.Role, error) {
	roles, err := s.repos.Roles.List(ctx)
	if err != nil {
		return nil, FromRepository(err, nil, nil)
	}
	for _, role := range roles {
		perms, err := s.repos.Roles.Permissions(ctx, role.ID)
		if err != nil {
			return nil, FromRepository(err, nil, nil)
		}
		role.Permissions = perms
	}
	return roles, nil
}

// GetRole returns one role with its permissions
func (s *RoleService) GetRole(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	role, err := s.repos.Roles.GetByID(ctx, id)
	if err != nil {
		return nil, FromRepository(err, ErrRoleNotFound, nil)
	}
	perms, err := s.repos.Roles.Permissions(ctx, id)
	if err != nil {
		return nil, FromRepository(err, nil, nil)
	}
	role.Permissions = perms
	return role, nil
}

// CreateRole creates a role and grants the listed permissions in one transaction
func (s *RoleService) CreateRole(ctx context.Context, input CreateRoleInput) (*models.Role, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Slug = strings.TrimSpace(input.Slug)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	role := models.NewRole(input.Name, input.Slug, strings.TrimSpace(input.Description))
	role.CreatedAt = s.now().UTC()
	role.UpdatedAt = role.CreatedAt

	err := WithTransaction(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) error {
		if err := s.repos.Roles.Create(ctx, role); err != nil {
			return FromRepository(err, nil, ErrDuplicateSlug)
		}
		for _, slug := range input.Permissions {
			perm, err := s.repos.Permissions.GetBySlug(ctx, slug)
			if err != nil {
				return FromRepository(err, ErrPermissionNotFound, nil)
			}
			if err := s.repos.Roles.AddPermission(ctx, role.ID, perm.ID); err != nil {
				return FromRepository(err, ErrPermissionNotFound, nil)
			}
			role.Permissions.Add(*perm)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("role created", zap.String("role_id", role.ID.String()), zap.String("slug", role.Slug))
	s.auditor.Record(auditEntry(ctx, models.AuditActionRoleCreated, "role").
		WithResource(role.ID).
		WithDetails(map[string]interface{}{"slug": role.Slug, "permissions": role.Permissions.Slugs()}))
	return role, nil
}

// GrantPermission adds a permission to a role (idempotent)
func (s *RoleService) GrantPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	return s.changeGrant(ctx, roleID, permissionID, true)
}

// RevokePermission removes a permission from a role (idempotent)
func (s *RoleService) RevokePermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	return s.changeGrant(ctx, roleID, permissionID, false)
}

func (s *RoleService) changeGrant(ctx context.Context, roleID, permissionID uuid.UUID, grant bool) error {
	if _, err := s.repos.Roles.GetByID(ctx, roleID); err != nil {
		return FromRepository(err, ErrRoleNotFound, nil)
	}
	if _, err := s.repos.Permissions.GetByID(ctx, permissionID); err != nil {
		return FromRepository(err, ErrPermissionNotFound, nil)
	}

	var err error
	change := "granted"
	if grant {
		err = s.repos.Roles.AddPermission(ctx, roleID, permissionID)
	} else {
		change = "revoked"
		err = s.repos.Roles.RemovePermission(ctx, roleID, permissionID)
	}
	if err != nil {
		return FromRepository(err, ErrRoleNotFound, nil)
	}

	s.loader.InvalidateRole(roleID)
	s.auditor.Record(auditEntry(ctx, models.AuditActionRoleUpdated, "role").
		WithResource(roleID).
		WithDetails(map[string]string{"permission_id": permissionID.String(), "change": change}))
	return nil
}

// ListPermissions returns every permission ordered by slug
func (s *RoleService) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	perms, err := s.repos.Permissions.List(ctx)
	if err != nil {
		return nil, FromRepository(err, nil, nil)
	}
	return perms, nil
}

// CreatePermission creates a permission
func (s *RoleService) CreatePermission(ctx context.Context, input CreatePermissionInput) (*models.Permission, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Slug = strings.TrimSpace(input.Slug)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	perm := models.NewPermission(input.Name, input.Slug)
	perm.CreatedAt = s.now().UTC()
	perm.UpdatedAt = perm.CreatedAt
	if err := s.repos.Permissions.Create(ctx, perm); err != nil {
		return nil, FromRepository(err, nil, ErrDuplicateSlug)
	}

	s.auditor.Record(auditEntry(ctx, models.AuditActionPermissionCreate, "permission").
		WithResource(perm.ID).
		WithDetails(map[string]string{"slug": perm.Slug}))
	return perm, nil
}
