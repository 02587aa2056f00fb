package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/yapi/internal/auth"
	"github.com/upb/yapi/middleware"
	"github.com/upb/yapi/models"
	"github.com/upb/yapi/services"
	"github.com/upb/yapi/utils"
	"go.uber.org/zap"
)

// UserService defines the credential operations behind the user endpoints
type UserService interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	CreateUser(ctx context.Context, input services.CreateUserInput) (*models.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, input services.UpdateUserInput) (*models.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	AddToGroup(ctx context.Context, userID, groupID uuid.UUID) error
	RemoveFromGroup(ctx context.Context, userID, groupID uuid.UUID) error
	SetAttribute(ctx context.Context, userID uuid.UUID, name, value string) error
	DeleteAttribute(ctx context.Context, userID uuid.UUID, name string) error
}

// CreateUserRequest represents a request to create a user.
// The role is selected by role_id or, when absent, by its slug in role.
type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	RoleID   string `json:"role_id"`
	Role     string `json:"role"`
}

// UpdateUserRequest represents a partial user update
type UpdateUserRequest struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	RoleID   *string `json:"role_id,omitempty"`
}

// SetAttributeRequest carries an attribute value
type SetAttributeRequest struct {
	Value string `json:"value" validate:"max=4096"`
}

// MeResponse describes the caller
type MeResponse struct {
	User        models.TokenPayload `json:"user"`
	Permissions []string            `json:"permissions"`
}

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	users  UserService
	logger *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger,
	}
}

// HandleMe handles GET /api/users/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		HandleServiceError(w, r, services.ErrMissingToken, h.logger)
		return
	}

	user, err := h.users.GetUser(r.Context(), identity.UserID)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	payload := auth.BuildPayload(user)
	_ = utils.WriteOK(w, MeResponse{
		User:        payload,
		Permissions: payload.Role.Permissions,
	})
}

// HandleListUsers handles GET /api/users
func (h *UserHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	users, err := h.users.ListUsers(r.Context(), limit, offset)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, users)
}

// HandleCreateUser handles POST /api/users
func (h *UserHandler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	input := services.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		RoleSlug: req.Role,
	}
	if req.RoleID != "" {
		roleID, err := utils.ParseUUID(req.RoleID, "role_id")
		if err != nil {
			HandleValidationError(w, r, err, h.logger)
			return
		}
		input.RoleID = roleID
	}

	user, err := h.users.CreateUser(r.Context(), input)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	h.logger.Info("user created",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("user_id", user.ID.String()))
	_ = utils.WriteCreated(w, user)
}

// HandleGetUser handles GET /api/users/{id}
func (h *UserHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	user, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, user)
}

// HandleUpdateUser handles PATCH /api/users/{id}. Changing an assigned
// username is refused with 412.
func (h *UserHandler) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	var req UpdateUserRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	input := services.UpdateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}
	if req.RoleID != nil {
		roleID, err := utils.ParseUUID(*req.RoleID, "role_id")
		if err != nil {
			HandleValidationError(w, r, err, h.logger)
			return
		}
		input.RoleID = &roleID
	}

	user, err := h.users.UpdateUser(r.Context(), id, input)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, user)
}

// HandleDeleteUser handles DELETE /api/users/{id}
func (h *UserHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	if err := h.users.DeleteUser(r.Context(), id); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// HandleAddToGroup handles PUT /api/users/{id}/groups/{groupID}
func (h *UserHandler) HandleAddToGroup(w http.ResponseWriter, r *http.Request) {
	h.membership(w, r, h.users.AddToGroup)
}

// HandleRemoveFromGroup handles DELETE /api/users/{id}/groups/{groupID}
func (h *UserHandler) HandleRemoveFromGroup(w http.ResponseWriter, r *http.Request) {
	h.membership(w, r, h.users.RemoveFromGroup)
}

func (h *UserHandler) membership(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, userID, groupID uuid.UUID) error) {
	userID, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}
	groupID, err := utils.ParseUUID(chi.URLParam(r, "groupID"), "groupID")
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	if err := apply(r.Context(), userID, groupID); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// HandleSetAttribute handles PUT /api/users/{id}/attributes/{name}
func (h *UserHandler) HandleSetAttribute(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	var req SetAttributeRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	if err := h.users.SetAttribute(r.Context(), userID, chi.URLParam(r, "name"), req.Value); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// HandleDeleteAttribute handles DELETE /api/users/{id}/attributes/{name}
func (h *UserHandler) HandleDeleteAttribute(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	if err := h.users.DeleteAttribute(r.Context(), userID, chi.URLParam(r, "name")); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// queryInt reads an optional integer query parameter; absent means zero
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, utils.FieldError(name, name+" must be an integer")
	}
	return n, nil
}
