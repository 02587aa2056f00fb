package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upb/yapi/internal/auth"
	"github.com/upb/yapi/models"
	"github.com/upb/yapi/repositories"
	"go.uber.org/zap"
)

// Pagination bounds for user listings
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// CreateUserInput describes a new credential. Either RoleID or RoleSlug selects the role.
type CreateUserInput struct {
	Username string    `validate:"omitempty,username"`
	Email    string    `validate:"required,email,max=255"`
	Password string    `validate:"required,max=1024"`
	RoleID   uuid.UUID `validate:"-"`
	RoleSlug string    `validate:"omitempty,slug"`
}

// UpdateUserInput carries the fields to change; nil fields are left alone
type UpdateUserInput struct {
	Username *string    `validate:"omitempty,username"`
	Email    *string    `validate:"omitempty,email,max=255"`
	Password *string    `validate:"omitempty,max=1024"`
	RoleID   *uuid.UUID `validate:"-"`
}

// CredentialService looks up, verifies and maintains user credentials
type CredentialService struct {
	txMgr   repositories.TransactionManager
	repos   *repositories.Repositories
	hasher  *auth.PasswordHasher
	loader  PayloadLoader
	auditor Auditor
	logger  *zap.Logger
	now     func() time.Time
}

// NewCredentialService creates a new CredentialService. A nil auditor discards audit entries.
func NewCredentialService(
	txMgr repositories.TransactionManager,
	repos *repositories.Repositories,
	hasher *auth.PasswordHasher,
	loader PayloadLoader,
	auditor Auditor,
	logger *zap.Logger,
) *CredentialService {
	if auditor == nil {
		auditor = NopAuditor{}
	}
	return &CredentialService{
		txMgr:   txMgr,
		repos:   repos,
		hasher:  hasher,
		loader:  loader,
		auditor: auditor,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the time source used for timestamps
func (s *CredentialService) WithClock(now func() time.Time) *CredentialService {
	s.now = now
	return s
}

// VerifyCredentials returns the live user identified by identifier (an email
// address or a username) whose password matches. Unknown or deleted accounts
// fail with ErrInvalidIdentifier, wrong passwords with ErrInvalidPassword.
func (s *CredentialService) VerifyCredentials(ctx context.Context, identifier, password string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		s.hasher.DummyCompare(password)
		return nil, ErrInvalidIdentifier
	}

	var (
		user *models.User
		err  error
	)
	if IsEmail(identifier) {
		user, err = s.repos.Users.GetByEmail(ctx, identifier)
	} else {
		user, err = s.repos.Users.GetByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.hasher.DummyCompare(password)
			return nil, ErrInvalidIdentifier
		}
		return nil, FromRepository(err, nil, nil)
	}

	if user.Deleted {
		s.hasher.DummyCompare(password)
		return nil, ErrInvalidIdentifier
	}

	if err := s.hasher.Verify(user.PasswordHash, user.SaltVersion, password); err != nil {
		if errors.Is(err, auth.ErrSaltMismatch) {
			s.logger.Warn("password hash made under another salt",
				zap.String("user_id", user.ID.String()),
				zap.String("salt_version", user.SaltVersion))
		}
		return nil, ErrInvalidPassword.Wrap(err)
	}

	return user, nil
}

// SetPassword stores a new password for user. Empty or blank input is ignored.
func (s *CredentialService) SetPassword(ctx context.Context, user *models.User, password string) error {
	if strings.TrimSpace(password) == "" {
		return nil
	}
	if err := s.applyPassword(user, password); err != nil {
		return err
	}
	if err := s.repos.Users.Update(ctx, user); err != nil {
		return FromRepository(err, ErrUserNotFound, nil)
	}
	return nil
}

func (s *CredentialService) applyPassword(user *models.User, password string) error {
	hash, version, err := s.hasher.Hash(password)
	if errors.Is(err, auth.ErrEmptyPassword) {
		return ErrInvalidInput.Wrap(err).WithDetail("password", "required")
	}
	if err != nil {
		return WrapInternal("failed to hash password", err)
	}
	user.PasswordHash = hash
	user.SaltVersion = version
	user.UpdatedAt = s.now().UTC()
	return nil
}

// SetUsername assigns the username of a user that has none. A user that
// already has one fails with ErrImmutableField and keeps its username.
func (s *CredentialService) SetUsername(ctx context.Context, user *models.User, username string) error {
	if user.HasUsername() {
		return immutableUsername(user.Username)
	}

	username = strings.TrimSpace(username)
	if !IsUsername(username) {
		return ErrInvalidInput.Wrap(fmt.Errorf("invalid username %q", username)).WithDetail("username", "username")
	}

	at := s.now().UTC()
	err := s.repos.Users.SetUsername(ctx, user.ID, username, at)
	if errors.Is(err, repositories.ErrNotFound) {
		// the stored row may have gained a username since user was loaded
		current, getErr := s.repos.Users.GetByID(ctx, user.ID)
		if getErr != nil {
			return FromRepository(getErr, ErrUserNotFound, nil)
		}
		if current.HasUsername() {
			return immutableUsername(current.Username)
		}
	}
	if err != nil {
		return FromRepository(err, ErrUserNotFound, ErrDuplicateUsername)
	}

	user.Username = username
	user.UpdatedAt = at
	return nil
}

func immutableUsername(current string) error {
	return ErrImmutableField.Wrap(errors.New("username is already set")).
		WithDetail("field", "username").
		WithDetail("username", current)
}

// CreateUser creates a credential with a hashed password and the selected role
func (s *CredentialService) CreateUser(ctx context.Context, input CreateUserInput) (*models.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)
	input.RoleSlug = strings.TrimSpace(input.RoleSlug)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	role, err := s.resolveRole(ctx, input.RoleID, input.RoleSlug)
	if err != nil {
		return nil, err
	}

	if _, err := s.repos.Users.GetByEmail(ctx, input.Email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, FromRepository(err, nil, nil)
	}
	if input.Username != "" {
		if _, err := s.repos.Users.GetByUsername(ctx, input.Username); err == nil {
			return nil, ErrDuplicateUsername
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return nil, FromRepository(err, nil, nil)
		}
	}

	user := models.NewUser(input.Username, input.Email, role.ID)
	user.CreatedAt = s.now().UTC()
	if err := s.applyPassword(user, input.Password); err != nil {
		return nil, err
	}

	if err := s.repos.Users.Create(ctx, user); err != nil {
		return nil, FromRepository(err, nil, ErrConflict)
	}

	s.logger.Info("user created",
		zap.String("user_id", user.ID.String()),
		zap.String("role", role.Slug))
	s.auditor.Record(auditEntry(ctx, models.AuditActionUserCreated, "user").
		WithResource(user.ID).
		WithDetails(map[string]string{"email": user.Email, "role": role.Slug}))

	user.Role = role
	return user, nil
}

func (s *CredentialService) resolveRole(ctx context.Context, roleID uuid.UUID, slug string) (*models.Role, error) {
	var (
		role *models.Role
		err  error
	)
	switch {
	case roleID != uuid.Nil:
		role, err = s.repos.Roles.GetByID(ctx, roleID)
	case slug != "":
		role, err = s.repos.Roles.GetBySlug(ctx, slug)
	default:
		return nil, ErrInvalidInput.Wrap(errors.New("role is required")).WithDetail("role", "required")
	}
	if err != nil {
		return nil, FromRepository(err, ErrRoleNotFound, nil)
	}
	if role.Deleted {
		return nil, ErrRoleNotFound
	}
	return role, nil
}

// GetUser returns a user with its role, groups and attributes loaded
func (s *CredentialService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repos.Users.GetByID(ctx, id)
	if err != nil {
		return nil, FromRepository(err, ErrUserNotFound, nil)
	}
	if err := s.loader.LoadUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers returns a page of users. Out of range limits fall back to the defaults.
func (s *CredentialService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	users, err := s.repos.Users.List(ctx, limit, offset)
	if err != nil {
		return nil, FromRepository(err, nil, nil)
	}
	return users, nil
}

// UpdateUser applies input to the user with id inside one transaction. Any
// username on a user that already has one, even the current value, fails the
// whole update.
func (s *CredentialService) UpdateUser(ctx context.Context, id uuid.UUID, input UpdateUserInput) (*models.User, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	user, err := WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*models.User, error) {
		user, err := s.repos.Users.GetByID(ctx, id)
		if err != nil {
			return nil, FromRepository(err, ErrUserNotFound, nil)
		}
		if user.Deleted {
			return nil, ErrUserNotFound
		}

		if input.Username != nil {
			if err := s.SetUsername(ctx, user, *input.Username); err != nil {
				return nil, err
			}
		}

		if input.Email != nil {
			user.Email = strings.TrimSpace(*input.Email)
		}
		if input.RoleID != nil && *input.RoleID != user.RoleID {
			role, err := s.resolveRole(ctx, *input.RoleID, "")
			if err != nil {
				return nil, err
			}
			user.RoleID = role.ID
		}
		if input.Password != nil && strings.TrimSpace(*input.Password) != "" {
			if err := s.applyPassword(user, *input.Password); err != nil {
				return nil, err
			}
		}

		user.UpdatedAt = s.now().UTC()
		if err := s.repos.Users.Update(ctx, user); err != nil {
			return nil, FromRepository(err, ErrUserNotFound, ErrDuplicateEmail)
		}
		return user, nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(auditEntry(ctx, models.AuditActionUserUpdated, "user").WithResource(user.ID))
	return user, nil
}

// AssignRole gives the user with userID the role with roleID
func (s *CredentialService) AssignRole(ctx context.Context, userID, roleID uuid.UUID) (*models.User, error) {
	return s.UpdateUser(ctx, userID, UpdateUserInput{RoleID: &roleID})
}

// DeleteUser soft-deletes a user and invalidates all of its tokens
func (s *CredentialService) DeleteUser(ctx context.Context, id uuid.UUID) error {
	err := WithTransaction(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) error {
		user, err := s.repos.Users.GetByID(ctx, id)
		if err != nil {
			return FromRepository(err, ErrUserNotFound, nil)
		}
		if user.Deleted {
			return nil
		}
		user.Deleted = true
		user.UpdatedAt = s.now().UTC()
		if err := s.repos.Users.Update(ctx, user); err != nil {
			return FromRepository(err, ErrUserNotFound, nil)
		}
		if _, err := s.repos.Tokens.InvalidateAll(ctx, id); err != nil {
			return FromRepository(err, nil, nil)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("user deleted", zap.String("user_id", id.String()))
	s.auditor.Record(auditEntry(ctx, models.AuditActionUserDeleted, "user").WithResource(id))
	return nil
}

// AddToGroup makes the user a member of the group (idempotent)
func (s *CredentialService) AddToGroup(ctx context.Context, userID, groupID uuid.UUID) error {
	if err := s.checkMembership(ctx, userID, groupID); err != nil {
		return err
	}
	if err := s.repos.Groups.AddMember(ctx, groupID, userID); err != nil {
		return FromRepository(err, ErrGroupNotFound, nil)
	}
	s.auditor.Record(auditEntry(ctx, models.AuditActionMembership, "group").
		WithResource(groupID).
		WithDetails(map[string]string{"user_id": userID.String(), "change": "added"}))
	return nil
}

// RemoveFromGroup drops the user from the group (idempotent)
func (s *CredentialService) RemoveFromGroup(ctx context.Context, userID, groupID uuid.UUID) error {
	if err := s.checkMembership(ctx, userID, groupID); err != nil {
		return err
	}
	if err := s.repos.Groups.RemoveMember(ctx, groupID, userID); err != nil {
		return FromRepository(err, ErrGroupNotFound, nil)
	}
	s.auditor.Record(auditEntry(ctx, models.AuditActionMembership, "group").
		WithResource(groupID).
		WithDetails(map[string]string{"user_id": userID.String(), "change": "removed"}))
	return nil
}

func (s *CredentialService) checkMembership(ctx context.Context, userID, groupID uuid.UUID) error {
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return FromRepository(err, ErrUserNotFound, nil)
	}
	if user.Deleted {
		return ErrUserNotFound
	}
	group, err := s.repos.Groups.GetByID(ctx, groupID)
	if err != nil {
		return FromRepository(err, ErrGroupNotFound, nil)
	}
	if group.Deleted {
		return ErrGroupNotFound
	}
	return nil
}

// SetAttribute creates or replaces a named attribute of the user
func (s *CredentialService) SetAttribute(ctx context.Context, userID uuid.UUID, name, value string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 64 {
		return ErrInvalidInput.Wrap(fmt.Errorf("invalid attribute name %q", name)).WithDetail("name", "max=64")
	}
	if _, err := s.repos.Users.GetByID(ctx, userID); err != nil {
		return FromRepository(err, ErrUserNotFound, nil)
	}

	now := s.now().UTC()
	attr := &models.Attribute{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repos.Attributes.Set(ctx, attr); err != nil {
		return FromRepository(err, ErrUserNotFound, nil)
	}
	return nil
}

// DeleteAttribute removes a named attribute of the user (idempotent)
func (s *CredentialService) DeleteAttribute(ctx context.Context, userID uuid.UUID, name string) error {
	if err := s.repos.Attributes.Delete(ctx, userID, strings.TrimSpace(name)); err != nil {
		return FromRepository(err, nil, nil)
	}
	return nil
}
