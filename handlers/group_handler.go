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

// GroupService defines the group operations behind the group endpoints
type GroupService interface {
	ListGroups(ctx context.Context) ([]*models.Group, error)
	CreateGroup(ctx context.Context, input services.CreateGroupInput) (*models.Group, error)
	DeleteGroup(ctx context.Context, id uuid.UUID) error
}

// CreateGroupRequest represents a request to create a group
type CreateGroupRequest struct {
	Name        string `json:"name" validate:"required"`
	Slug        string `json:"slug" validate:"required"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Protected   bool   `json:"protected"`
}

// GroupHandler handles group HTTP requests
type GroupHandler struct {
	groups GroupService
	logger *zap.Logger
}

// NewGroupHandler creates a new GroupHandler
func NewGroupHandler(groups GroupService, logger *zap.Logger) *GroupHandler {
	return &GroupHandler{
		groups: groups,
		logger: logger,
	}
}

// HandleListGroups handles GET /api/groups
func (h *GroupHandler) HandleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.ListGroups(r.Context())
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, groups)
}

// HandleCreateGroup handles POST /api/groups
func (h *GroupHandler) HandleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	group, err := h.groups.CreateGroup(r.Context(), services.CreateGroupInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Image:       req.Image,
		Protected:   req.Protected,
	})
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, group)
}

// HandleDeleteGroup handles DELETE /api/groups/{id}. Protected groups are
// refused with 403.
func (h *GroupHandler) HandleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		HandleValidationError(w, r, err, h.logger)
		return
	}

	if err := h.groups.DeleteGroup(r.Context(), id); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}
