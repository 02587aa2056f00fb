package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/yapi/models"
	"github.com/upb/yapi/services"
	"github.com/upb/yapi/utils"
	"go.uber.org/zap"
)

// RoleService defines the role and permission operations behind the role endpoints
type RoleService interface {
	ListRoles(ctx context.Context) ([]*models.Role, error)
	GetRole(ctx context.Context, id uuid.UUID) (*models.Role, error)
	CreateRole(ctx context.Context, input services.CreateRoleInput) (*models.Role, error)
	GrantPermission(ctx context.Context, roleID, permissionID uuid.UUID) error
	RevokePermission(ctx context.Context, roleID, permissionID uuid.UUID) error
	ListPermissions(ctx context.Context) ([]*models.Permission, error)
	CreatePermission(ctx context.Context, input services.CreatePermissionInput) (*models.Permission, error)
}

// CreateRoleRequest represents a request to create a role
type CreateRoleRequest struct {
	Name        string   `json:"name" validate:"required"`
	Slug        string   `json:"slug" validate:"required"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// CreatePermissionRequest represents a request to create a permission
type CreatePermissionRequest struct {
	Name string `json:"name" validate:"required"`
	Slug string `json:"slug" validate:"required"`
}

// RoleHandler handles role and permission HTTP requests
type RoleHandler struct {
	roles  RoleService
	logger *zap.Logger
}

// NewRoleHandler creates a new RoleHandler
func NewRoleHandler(roles RoleService, logger *zap.Logger) *RoleHandler {
	return &RoleHandler{
		roles:  roles,
		logger: logger,
	}
}

// HandleListRoles handles GET /api/roles
func (h *RoleHandler) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.ListRoles(r.Context())
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, roles)
}

// HandleGetRole handles GET /api/roles/{id}
func (h *RoleHandler) HandleGetRole(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	role, err := h.roles.GetRole(r.Context(), id)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, role)
}

// HandleCreateRole handles POST /api/roles
func (h *RoleHandler) HandleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	role, err := h.roles.CreateRole(r.Context(), services.CreateRoleInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, role)
}

// HandleGrantPermission handles PUT /api/roles/{id}/permissions/{permissionID}
func (h *RoleHandler) HandleGrantPermission(w http.ResponseWriter, r *http.Request) {
	h.grant(w, r, h.roles.GrantPermission)
}

// HandleRevokePermission handles DELETE /api/roles/{id}/permissions/{permissionID}
func (h *RoleHandler) HandleRevokePermission(w http.ResponseWriter, r *http.Request) {
	h.grant(w, r, h.roles.RevokePermission)
}

func (h *RoleHandler) grant(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, roleID, permissionID uuid.UUID) error) {
	roleID, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}
	permissionID, err := utils.ParseUUID(chi.URLParam(r, "permissionID"), "permissionID")
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	if err := apply(r.Context(), roleID, permissionID); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// HandleListPermissions handles GET /api/permissions
func (h *RoleHandler) HandleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.roles.ListPermissions(r.Context())
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, perms)
}

// HandleCreatePermission handles POST /api/permissions
func (h *RoleHandler) HandleCreatePermission(w http.ResponseWriter, r *http.Request) {
	var req CreatePermissionRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	perm, err := h.roles.CreatePermission(r.Context(), services.CreatePermissionInput{
		Name: req.Name,
		Slug: req.Slug,
	})
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, perm)
}
