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

// PermissionRepository implements the repositories.PermissionRepository interface
type PermissionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewPermissionRepository creates a new permission repository
func NewPermissionRepository(db *DB, logger *zap.Logger) repositories.PermissionRepository {
	return &PermissionRepository{
		db:     db,
		logger: logger,
	}
}

func scanPermission(row rowScanner) (*models.Permission, error) {
	perm := &models.Permission{}
	err := row.Scan(
		&perm.ID,
		&perm.Name,
		&perm.Slug,
		&perm.Deleted,
		&perm.CreatedAt,
		&perm.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	perm.CreatedAt = perm.CreatedAt.UTC()
	perm.UpdatedAt = perm.UpdatedAt.UTC()
	return perm, nil
}

// Create creates a new permission
func (r *PermissionRepository) Create(ctx context.Context, perm *models.Permission) error {
	query := `
		INSERT INTO permissions (id, name, slug, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		perm.ID,
		perm.Name,
		perm.Slug,
		perm.Deleted,
		perm.CreatedAt,
		perm.UpdatedAt,
	)
	if err != nil {
		return wrap("create permission", err)
	}

	r.logger.Debug("permission created", zap.String("id", perm.ID.String()), zap.String("slug", perm.Slug))
	return nil
}

func (r *PermissionRepository) getOne(ctx context.Context, where string, key interface{}) (*models.Permission, error) {
	query := `SELECT id, name, slug, deleted, created_at, updated_at FROM permissions WHERE ` + where

	executor := GetExecutor(ctx, r.db)
	perm, err := scanPermission(executor.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("permission", key)
		}
		return nil, wrap("get permission", err)
	}
	return perm, nil
}

// GetByID retrieves a permission by ID
func (r *PermissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Permission, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetBySlug retrieves a permission by slug
func (r *PermissionRepository) GetBySlug(ctx context.Context, slug string) (*models.Permission, error) {
	return r.getOne(ctx, "slug = $1", slug)
}

// List retrieves all permissions
func (r *PermissionRepository) List(ctx context.Context) ([]*models.Permission, error) {
	query := `SELECT id, name, slug, deleted, created_at, updated_at FROM permissions ORDER BY slug`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, wrap("query permissions", err)
	}
	defer rows.Close()

	perms := []*models.Permission{}
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, wrap("scan permission", err)
		}
		perms = append(perms, perm)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("iterate permission rows", err)
	}

	return perms, nil
}
