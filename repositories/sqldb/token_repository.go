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

// TokenRepository implements the repositories.TokenRepository interface
type TokenRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *DB, logger *zap.Logger) repositories.TokenRepository {
	return &TokenRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a token record
func (r *TokenRepository) Create(ctx context.Context, token *models.UserToken) error {
	query := `
		INSERT INTO user_tokens (id, user_id, token_hash, is_valid, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.IsValid,
		token.IssuedAt,
		token.ExpiresAt,
	)
	if err != nil {
		return wrap("create token", err)
	}

	r.logger.Debug("token stored",
		zap.String("id", token.ID.String()),
		zap.String("user_id", token.UserID.String()))
	return nil
}

// GetByID retrieves a token record by its JWT ID
func (r *TokenRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.UserToken, error) {
	query := `
		SELECT id, user_id, token_hash, is_valid, issued_at, expires_at
		FROM user_tokens
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	token := &models.UserToken{}
	err := executor.QueryRowContext(ctx, query, id).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.IsValid,
		&token.IssuedAt,
		&token.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("token", id)
		}
		return nil, wrap("get token", err)
	}

	token.IssuedAt = token.IssuedAt.UTC()
	token.ExpiresAt = token.ExpiresAt.UTC()
	return token, nil
}

// InvalidateAll marks every valid token of a user invalid
func (r *TokenRepository) InvalidateAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `UPDATE user_tokens SET is_valid = FALSE WHERE user_id = $1 AND is_valid = TRUE`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, wrap("invalidate tokens", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, wrap("get rows affected", err)
	}

	r.logger.Debug("tokens invalidated",
		zap.String("user_id", userID.String()),
		zap.Int64("count", n))
	return n, nil
}
