package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/yapi/internal/auth"
	"github.com/upb/yapi/internal/salt"
	"github.com/upb/yapi/models"
	"github.com/upb/yapi/repositories"
	"golang.org/x/crypto/bcrypt"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return userResult(m.Called(ctx, id))
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return userResult(m.Called(ctx, username))
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return userResult(m.Called(ctx, email))
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	args := m.Called(ctx, limit, offset)
	if users := args.Get(0); users != nil {
		return users.([]*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) SetUsername(ctx context.Context, id uuid.UUID, username string, at time.Time) error {
	return m.Called(ctx, id, username, at).Error(0)
}

func (m *MockUserRepository) MarkLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func userResult(args mock.Arguments) (*models.User, error) {
	if user := args.Get(0); user != nil {
		return user.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockTokenRepository is a mock implementation of TokenRepository
type MockTokenRepository struct {
	mock.Mock
}

func (m *MockTokenRepository) Create(ctx context.Context, token *models.UserToken) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockTokenRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.UserToken, error) {
	args := m.Called(ctx, id)
	if token := args.Get(0); token != nil {
		return token.(*models.UserToken), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTokenRepository) InvalidateAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// MockPayloadLoader is a mock implementation of PayloadLoader
type MockPayloadLoader struct {
	mock.Mock
}

func (m *MockPayloadLoader) LoadUser(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockPayloadLoader) InvalidateRole(roleID uuid.UUID) {
	m.Called(roleID)
}

func (m *MockPayloadLoader) InvalidatePermission(permissionID uuid.UUID) {
	m.Called(permissionID)
}

// recordingAuditor keeps every entry in memory
type recordingAuditor struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (a *recordingAuditor) Record(log *models.AuditLog) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, log)
}

func (a *recordingAuditor) actions() []models.AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.AuditAction, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

func testHasher(t *testing.T) *auth.PasswordHasher {
	t.Helper()
	s, err := salt.FromSecret([]byte("unit-test-secret"))
	require.NoError(t, err)
	return auth.NewPasswordHasher(s, bcrypt.MinCost)
}

// userWithPassword returns a stored user whose password hashes to password
func userWithPassword(t *testing.T, hasher *auth.PasswordHasher, username, email, password string) *models.User {
	t.Helper()
	user := models.NewUser(username, email, uuid.New())
	hash, version, err := hasher.Hash(password)
	require.NoError(t, err)
	user.PasswordHash = hash
	user.SaltVersion = version
	return user
}

// passthroughTxManager runs the function against a MockTransaction that
// commits, returning the context unchanged
func passthroughTxManager(ctx context.Context) (*MockTransactionManager, *MockTransaction) {
	txMgr := new(MockTransactionManager)
	tx := new(MockTransaction)
	txMgr.On("Begin", mock.Anything).Return(tx, nil)
	tx.On("Context").Return(ctx)
	tx.On("Commit").Return(nil).Maybe()
	tx.On("Rollback").Return(nil).Maybe()
	return txMgr, tx
}

var _ repositories.UserRepository = (*MockUserRepository)(nil)
var _ repositories.TokenRepository = (*MockTokenRepository)(nil)
