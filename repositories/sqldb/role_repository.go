package sqldb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/yapi/models"
	"github.com/upb/yapi/repositories"
	"go.uber.org/zap"
)

const roleColumns = `id, name, slug, description, deleted, created_at, updated_at`

// RoleRepository implements the repositories.RoleRepository interface
type RoleRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB, logger *zap.Logger) repositories.RoleRepository {
	return &RoleRepository{
		db:     db,
		logger: logger,
	}
}

func scanRole(row rowScanner) (*models.Role, error) {
	role := &models.Role{}
	err := row.Scan(
		&role.ID,
		&role.Name,
		&role.Slug,
		&role.Description,
		&role.Deleted,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	role.CreatedAt = role.CreatedAt.UTC()
	role.UpdatedAt = role.UpdatedAt.UTC()
	return role, nil
}

// Create creates a new role
func (r *RoleRepository) Create(ctx context.Context, role *models.Role) error {
	query := `
		INSERT INTO roles (id, name, slug, description, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		role.ID,
		role.Name,
		role.Slug,
		role.Description,
		role.Deleted,
		role.CreatedAt,
		role.UpdatedAt,
	)
	if err != nil {
		return wrap("create role", err)
	}

	r.logger.Debug("role created", zap.String("id", role.ID.String()), zap.String("slug", role.Slug))
	return nil
}

func (r *RoleRepository) getOne(ctx context.Context, where string, key interface{}) (*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE ` + where

	executor := GetExecutor(ctx, r.db)
	role, err := scanRole(executor.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("role", key)
		}
		return nil, wrap("get role", err)
	}
	return role, nil
}

// GetByID retrieves a role by ID
func (r *RoleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetBySlug retrieves a role by slug
func (r *RoleRepository) GetBySlug(ctx context.Context, slug string) (*models.Role, error) {
	return r.getOne(ctx, "slug = $1", slug)
}

// List retrieves all roles
func (r *RoleRepository) List(ctx context.Context) ([]*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles ORDER BY name, id`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, wrap("query roles", err)
	}
	defer rows.Close()

	roles := []*models.Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, wrap("scan role", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("iterate role rows", err)
	}

	return roles, nil
}

// Update updates a role
func (r *RoleRepository) Update(ctx context.Context, role *models.Role) error {
	query := `
		UPDATE roles
		SET name = $1,
		    description = $2,
		    deleted = $3,
		    updated_at = $4
		WHERE id = $5
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		role.Name,
		role.Description,
		role.Deleted,
		role.UpdatedAt,
		role.ID,
	)
	if err != nil {
		return wrap("update role", err)
	}

	if err := expectAffected(result, "role", role.ID); err != nil {
		return err
	}

	r.logger.Debug("role updated", zap.String("id", role.ID.String()))
	return nil
}

// Permissions loads the permissions granted by a role
func (r *RoleRepository) Permissions(ctx context.Context, roleID uuid.UUID) (models.PermissionSet, error) {
	query := `
		SELECT p.id, p.name, p.slug, p.deleted, p.created_at, p.updated_at
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, wrap("query role permissions", err)
	}
	defer rows.Close()

	set := models.PermissionSet{}
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, wrap("scan permission", err)
		}
		set.Add(*perm)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("iterate permission rows", err)
	}

	return set, nil
}

// AddPermission grants a permission to a role
func (r *RoleRepository) AddPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	query := `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, roleID, permissionID); err != nil {
		return wrap("grant permission", err)
	}

	r.logger.Debug("permission granted",
		zap.String("role_id", roleID.String()),
		zap.String("permission_id", permissionID.String()))
	return nil
}

// RemovePermission revokes a permission from a role
func (r *RoleRepository) RemovePermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	query := `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, roleID, permissionID); err != nil {
		return wrap("revoke permission", err)
	}

	r.logger.Debug("permission revoked",
		zap.String("role_id", roleID.String()),
		zap.String("permission_id", permissionID.String()))
	return nil
}
