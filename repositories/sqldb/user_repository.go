package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/yapi/models"
	"github.com/upb/yapi/repositories"
	"go.uber.org/zap"
)

const userColumns = `id, username, email, password_hash, salt_version, role_id, deleted, last_login_at, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user      models.User
		username  sql.NullString
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&user.ID,
		&username,
		&user.Email,
		&user.PasswordHash,
		&user.SaltVersion,
		&user.RoleID,
		&user.Deleted,
		&lastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Username = username.String
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		user.LastLoginAt = &t
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return &user, nil
}

// nullString stores empty strings as NULL
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, salt_version, role_id, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		user.ID,
		nullString(user.Username),
		user.Email,
		user.PasswordHash,
		user.SaltVersion,
		user.RoleID,
		user.Deleted,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return wrap("create user", err)
	}

	r.logger.Debug("user created", zap.String("id", user.ID.String()), zap.String("email", user.Email))
	return nil
}

func (r *UserRepository) getOne(ctx context.Context, where string, key interface{}) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	executor := GetExecutor(ctx, r.db)
	user, err := scanUser(executor.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("user", key)
		}
		return nil, wrap("get user", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, "username = $1", username)
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, "email = $1", email)
}

// List retrieves users with pagination
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id LIMIT $1 OFFSET $2`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, wrap("query users", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, wrap("scan user", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("iterate user rows", err)
	}

	return users, nil
}

// Update updates a user. The username is never touched here.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET email = $1,
		    password_hash = $2,
		    salt_version = $3,
		    role_id = $4,
		    deleted = $5,
		    updated_at = $6
		WHERE id = $7
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		user.Email,
		user.PasswordHash,
		user.SaltVersion,
		user.RoleID,
		user.Deleted,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return wrap("update user", err)
	}

	if err := expectAffected(result, "user", user.ID); err != nil {
		return err
	}

	r.logger.Debug("user updated", zap.String("id", user.ID.String()))
	return nil
}

// SetUsername assigns a username to a user that has none
func (r *UserRepository) SetUsername(ctx context.Context, id uuid.UUID, username string, at time.Time) error {
	query := `UPDATE users SET username = $1, updated_at = $2 WHERE id = $3 AND username IS NULL`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, username, at, id)
	if err != nil {
		return wrap("set username", err)
	}

	if err := expectAffected(result, "user without username", id); err != nil {
		return err
	}

	r.logger.Debug("username assigned", zap.String("id", id.String()))
	return nil
}

// MarkLogin records the last login time of a live user
func (r *UserRepository) MarkLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE users SET last_login_at = $1 WHERE id = $2 AND deleted = FALSE`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, at, id)
	if err != nil {
		return wrap("mark login", err)
	}

	return expectAffected(result, "user", id)
}

// expectAffected turns an update that matched nothing into ErrNotFound
func expectAffected(result sql.Result, kind string, key interface{}) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return wrap("get rows affected", err)
	}
	if rowsAffected == 0 {
		return notFound(kind, key)
	}
	return nil
}
