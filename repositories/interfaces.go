package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/yapi/models"
)

// Storage errors shared by every implementation
var (
	// ErrNotFound is returned when no row matches
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a unique constraint is violated
	ErrDuplicate = errors.New("record already exists")

	// ErrUnavailable is returned when the database cannot be reached
	ErrUnavailable = errors.New("database unavailable")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction.
	// The context passed to fn carries the transaction; repositories called
	// with it run inside the transaction.
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository handles credential data operations
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID, including soft-deleted users
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByUsername retrieves a user by username
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// GetByEmail retrieves a user by email
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// List retrieves users with pagination
	List(ctx context.Context, limit, offset int) ([]*models.User, error)

	// Update persists email, password hash, salt version, role and deleted flag
	Update(ctx context.Context, user *models.User) error

	// SetUsername assigns the username of a user that has none yet.
	// Returns ErrNotFound when the user does not exist or already has one.
	SetUsername(ctx context.Context, id uuid.UUID, username string, at time.Time) error

	// MarkLogin records a login time. Inside a transaction it also locks the user row.
	MarkLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// RoleRepository handles role data operations and the role/permission relation
type RoleRepository interface {
	// Create creates a new role
	Create(ctx context.Context, role *models.Role) error

	// GetByID retrieves a role by ID, permissions not loaded
	GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error)

	// GetBySlug retrieves a role by slug, permissions not loaded
	GetBySlug(ctx context.Context, slug string) (*models.Role, error)

	// List retrieves all roles ordered by name
	List(ctx context.Context) ([]*models.Role, error)

	// Update updates name, description and deleted flag
	Update(ctx context.Context, role *models.Role) error

	// Permissions loads the permission set granted by a role
	Permissions(ctx context.Context, roleID uuid.UUID) (models.PermissionSet, error)

	// AddPermission grants a permission to a role (idempotent)
	AddPermission(ctx context.Context, roleID, permissionID uuid.UUID) error

	// RemovePermission revokes a permission from a role (idempotent)
	RemovePermission(ctx context.Context, roleID, permissionID uuid.UUID) error
}

// PermissionRepository handles permission data operations
type PermissionRepository interface {
	// Create creates a new permission
	Create(ctx context.Context, permission *models.Permission) error

	// GetByID retrieves a permission by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Permission, error)

	// GetBySlug retrieves a permission by slug
	GetBySlug(ctx context.Context, slug string) (*models.Permission, error)

	// List retrieves all permissions ordered by slug
	List(ctx context.Context) ([]*models.Permission, error)
}

// GroupRepository handles group data operations and memberships
type GroupRepository interface {
	// Create creates a new group
	Create(ctx context.Context, group *models.Group) error

	// GetByID retrieves a group by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Group, error)

	// GetBySlug retrieves a group by slug
	GetBySlug(ctx context.Context, slug string) (*models.Group, error)

	// List retrieves all groups that are not soft-deleted
	List(ctx context.Context) ([]*models.Group, error)

	// Update updates the mutable group fields including the deleted flag
	Update(ctx context.Context, group *models.Group) error

	// AddMember adds a user to a group (idempotent)
	AddMember(ctx context.Context, groupID, userID uuid.UUID) error

	// RemoveMember removes a user from a group (idempotent)
	RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error

	// ListForUser retrieves the live groups a user belongs to
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.GroupRef, error)
}

// AttributeRepository handles user attributes
type AttributeRepository interface {
	// Set creates or replaces the attribute with the same user and name
	Set(ctx context.Context, attr *models.Attribute) error

	// Delete removes an attribute (idempotent)
	Delete(ctx context.Context, userID uuid.UUID, name string) error

	// ListForUser returns the attributes of a user as a name/value map
	ListForUser(ctx context.Context, userID uuid.UUID) (map[string]string, error)
}

// TokenRepository handles issued token records
type TokenRepository interface {
	// Create stores a new token record
	Create(ctx context.Context, token *models.UserToken) error

	// GetByID retrieves a token record by its JWT ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.UserToken, error)

	// InvalidateAll marks every valid token of a user invalid and returns how many changed
	InvalidateAll(ctx context.Context, userID uuid.UUID) (int64, error)
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByID retrieves an audit log by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error)

	// List retrieves audit logs, newest first, with pagination
	List(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)

	// ListByUser retrieves audit logs of an acting user with pagination
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)
}

// Repositories aggregates all repository instances
type Repositories struct {
	Users       UserRepository
	Roles       RoleRepository
	Permissions PermissionRepository
	Groups      GroupRepository
	Attributes  AttributeRepository
	Tokens      TokenRepository
	AuditLogs   AuditRepository
}
