package handlers

import (
	"context"
	"net/http"

	"github.com/upb/yapi/services/bootstrap"
	"github.com/upb/yapi/utils"
	"go.uber.org/zap"
)

// Initializer seeds an empty installation
type Initializer interface {
	Initialize(ctx context.Context) (*bootstrap.Result, error)
}

// BootstrapHandler handles first-run initialization
type BootstrapHandler struct {
	seeder Initializer
	logger *zap.Logger
}

// NewBootstrapHandler creates a new BootstrapHandler
func NewBootstrapHandler(seeder Initializer, logger *zap.Logger) *BootstrapHandler {
	return &BootstrapHandler{
		seeder: seeder,
		logger: logger,
	}
}

// HandleBootstrap handles POST /api/bootstrap. Once any role exists it
// answers 409.
func (h *BootstrapHandler) HandleBootstrap(w http.ResponseWriter, r *http.Request) {
	result, err := h.seeder.Initialize(r.Context())
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	h.logger.Info("installation bootstrapped",
		zap.Int("permissions", result.Permissions),
		zap.Int("roles", result.Roles),
		zap.Int("groups", result.Groups),
		zap.Bool("admin", result.Admin))
	_ = utils.WriteCreated(w, result)
}
