package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/upb/yapi/internal/auth"
	"github.com/upb/yapi/middleware"
	"github.com/upb/yapi/models"
	"github.com/upb/yapi/services"
	"github.com/upb/yapi/services/bootstrap"
)

// MockAuthService is a mock implementation of AuthService
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Authenticate(ctx context.Context, identifier, password string) (*services.IssuedToken, error) {
	args := m.Called(ctx, identifier, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.IssuedToken), args.Error(1)
}

func (m *MockAuthService) Verify(ctx context.Context, raw string) (*auth.Claims, error) {
	args := m.Called(ctx, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Claims), args.Error(1)
}

func (m *MockAuthService) Logout(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// MockUserService is a mock implementation of UserService
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

func (m *MockUserService) CreateUser(ctx context.Context, input services.CreateUserInput) (*models.User, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) UpdateUser(ctx context.Context, id uuid.UUID, input services.UpdateUserInput) (*models.User, error) {
	args := m.Called(ctx, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockUserService) AddToGroup(ctx context.Context, userID, groupID uuid.UUID) error {
	return m.Called(ctx, userID, groupID).Error(0)
}

func (m *MockUserService) RemoveFromGroup(ctx context.Context, userID, groupID uuid.UUID) error {
	return m.Called(ctx, userID, groupID).Error(0)
}

func (m *MockUserService) SetAttribute(ctx context.Context, userID uuid.UUID, name, value string) error {
	return m.Called(ctx, userID, name, value).Error(0)
}

func (m *MockUserService) DeleteAttribute(ctx context.Context, userID uuid.UUID, name string) error {
	return m.Called(ctx, userID, name).Error(0)
}

// MockRoleService is a mock implementation of RoleService
type MockRoleService struct {
	mock.Mock
}

func (m *MockRoleService) ListRoles(ctx context.Context) ([]*models.Role, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Role), args.Error(1)
}

func (m *MockRoleService) GetRole(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Role), args.Error(1)
}

func (m *MockRoleService) CreateRole(ctx context.Context, input services.CreateRoleInput) (*models.Role, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Role), args.Error(1)
}

func (m *MockRoleService) GrantPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	return m.Called(ctx, roleID, permissionID).Error(0)
}

func (m *MockRoleService) RevokePermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	return m.Called(ctx, roleID, permissionID).Error(0)
}

func (m *MockRoleService) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Permission), args.Error(1)
}

func (m *MockRoleService) CreatePermission(ctx context.Context, input services.CreatePermissionInput) (*models.Permission, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Permission), args.Error(1)
}

// MockGroupService is a mock implementation of GroupService
type MockGroupService struct {
	mock.Mock
}

func (m *MockGroupService) ListGroups(ctx context.Context) ([]*models.Group, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Group), args.Error(1)
}

func (m *MockGroupService) CreateGroup(ctx context.Context, input services.CreateGroupInput) (*models.Group, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Group), args.Error(1)
}

func (m *MockGroupService) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

// MockInitializer is a mock implementation of Initializer
type MockInitializer struct {
	mock.Mock
}

func (m *MockInitializer) Initialize(ctx context.Context) (*bootstrap.Result, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bootstrap.Result), args.Error(1)
}

// withURLParams attaches chi route parameters to a request
func withURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// withIdentity marks a request as authenticated by the given user
func withIdentity(r *http.Request, user *models.User) *http.Request {
	identity := &middleware.Identity{
		UserID:  user.ID,
		TokenID: uuid.New(),
		Payload: auth.BuildPayload(user),
	}
	return r.WithContext(middleware.WithIdentity(r.Context(), identity))
}
