package sqldb

import (
	"context"

	"github.com/google/uuid"
	"github.com/upb/yapi/models"
	"github.com/upb/yapi/repositories"
	"go.uber.org/zap"
)

// AttributeRepository implements the repositories.AttributeRepository interface
type AttributeRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAttributeRepository creates a new attribute repository
func NewAttributeRepository(db *DB, logger *zap.Logger) repositories.AttributeRepository {
	return &AttributeRepository{
		db:     db,
		logger: logger,
	}
}

// Set upserts an attribute keyed by user and name
func (r *AttributeRepository) Set(ctx context.Context, attr *models.Attribute) error {
	query := `
		INSERT INTO user_attributes (id, user_id, name, value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, name) DO UPDATE
		SET value = excluded.value, updated_at = excluded.updated_at
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		attr.ID,
		attr.UserID,
		attr.Name,
		attr.Value,
		attr.CreatedAt,
		attr.UpdatedAt,
	)
	if err != nil {
		return wrap("set attribute", err)
	}

	r.logger.Debug("attribute set",
		zap.String("user_id", attr.UserID.String()),
		zap.String("name", attr.Name))
	return nil
}

// Delete removes an attribute
func (r *AttributeRepository) Delete(ctx context.Context, userID uuid.UUID, name string) error {
	query := `DELETE FROM user_attributes WHERE user_id = $1 AND name = $2`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, userID, name); err != nil {
		return wrap("delete attribute", err)
	}
	return nil
}

// ListForUser returns the attributes of a user
func (r *AttributeRepository) ListForUser(ctx context.Context, userID uuid.UUID) (map[string]string, error) {
	query := `SELECT name, value FROM user_attributes WHERE user_id = $1`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, wrap("query attributes", err)
	}
	defer rows.Close()

	attrs := map[string]string{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, wrap("scan attribute", err)
		}
		attrs[name] = value
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("iterate attribute rows", err)
	}

	return attrs, nil
}
