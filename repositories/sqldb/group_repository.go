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

const groupColumns = `id, name, slug, description, image, protected, deleted, created_at, updated_at`

// GroupRepository implements the repositories.GroupRepository interface
type GroupRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewGroupRepository creates a new group repository
func NewGroupRepository(db *DB, logger *zap.Logger) repositories.GroupRepository {
	return &GroupRepository{
		db:     db,
		logger: logger,
	}
}

func scanGroup(row rowScanner) (*models.Group, error) {
	group := &models.Group{}
	err := row.Scan(
		&group.ID,
		&group.Name,
		&group.Slug,
		&group.Description,
		&group.Image,
		&group.Protected,
		&group.Deleted,
		&group.CreatedAt,
		&group.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	group.CreatedAt = group.CreatedAt.UTC()
	group.UpdatedAt = group.UpdatedAt.UTC()
	return group, nil
}

// Create creates a new group
func (r *GroupRepository) Create(ctx context.Context, group *models.Group) error {
	query := `
		INSERT INTO member_groups (id, name, slug, description, image, protected, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		group.ID,
		group.Name,
		group.Slug,
		group.Description,
		group.Image,
		group.Protected,
		group.Deleted,
		group.CreatedAt,
		group.UpdatedAt,
	)
	if err != nil {
		return wrap("create group", err)
	}

	r.logger.Debug("group created", zap.String("id", group.ID.String()), zap.String("slug", group.Slug))
	return nil
}

func (r *GroupRepository) getOne(ctx context.Context, where string, key interface{}) (*models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM member_groups WHERE ` + where

	executor := GetExecutor(ctx, r.db)
	group, err := scanGroup(executor.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("group", key)
		}
		return nil, wrap("get group", err)
	}
	return group, nil
}

// GetByID retrieves a group by ID
func (r *GroupRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetBySlug retrieves a group by slug
func (r *GroupRepository) GetBySlug(ctx context.Context, slug string) (*models.Group, error) {
	return r.getOne(ctx, "slug = $1", slug)
}

// List retrieves live groups ordered by name
func (r *GroupRepository) List(ctx context.Context) ([]*models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM member_groups WHERE deleted = FALSE ORDER BY name, id`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, wrap("query groups", err)
	}
	defer rows.Close()

	groups := []*models.Group{}
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, wrap("scan group", err)
		}
		groups = append(groups, group)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("iterate group rows", err)
	}

	return groups, nil
}

// Update updates a group
func (r *GroupRepository) Update(ctx context.Context, group *models.Group) error {
	query := `
		UPDATE member_groups
		SET name = $1,
		    description = $2,
		    image = $3,
		    protected = $4,
		    deleted = $5,
		    updated_at = $6
		WHERE id = $7
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		group.Name,
		group.Description,
		group.Image,
		group.Protected,
		group.Deleted,
		group.UpdatedAt,
		group.ID,
	)
	if err != nil {
		return wrap("update group", err)
	}

	if err := expectAffected(result, "group", group.ID); err != nil {
		return err
	}

	r.logger.Debug("group updated", zap.String("id", group.ID.String()))
	return nil
}

// AddMember adds a user to a group
func (r *GroupRepository) AddMember(ctx context.Context, groupID, userID uuid.UUID) error {
	query := `
		INSERT INTO user_groups (user_id, group_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, userID, groupID); err != nil {
		return wrap("add group member", err)
	}

	r.logger.Debug("group member added",
		zap.String("group_id", groupID.String()),
		zap.String("user_id", userID.String()))
	return nil
}

// RemoveMember removes a user from a group
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error {
	query := `DELETE FROM user_groups WHERE user_id = $1 AND group_id = $2`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, userID, groupID); err != nil {
		return wrap("remove group member", err)
	}

	r.logger.Debug("group member removed",
		zap.String("group_id", groupID.String()),
		zap.String("user_id", userID.String()))
	return nil
}

// ListForUser retrieves the live groups of a user ordered by slug
func (r *GroupRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.GroupRef, error) {
	query := `
		SELECT g.id, g.name, g.slug
		FROM member_groups g
		JOIN user_groups ug ON ug.group_id = g.id
		WHERE ug.user_id = $1 AND g.deleted = FALSE
		ORDER BY g.slug
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, wrap("query user groups", err)
	}
	defer rows.Close()

	refs := []models.GroupRef{}
	for rows.Next() {
		var ref models.GroupRef
		if err := rows.Scan(&ref.ID, &ref.Name, &ref.Slug); err != nil {
			return nil, wrap("scan group", err)
		}
		refs = append(refs, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("iterate group rows", err)
	}

	return refs, nil
}
