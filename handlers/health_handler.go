package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/upb/yapi/config"
	"github.com/upb/yapi/utils"
	"go.uber.org/zap"
)

// HealthChecker reports whether storage answers
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// APIInfo is the info block of the healthcheck
type APIInfo struct {
	Name      string `json:"name"`
	Author    string `json:"author,omitempty"`
	Version   string `json:"version"`
	License   string `json:"license,omitempty"`
	Copyright string `json:"copyright,omitempty"`
}

// HealthResponse represents the healthcheck result
type HealthResponse struct {
	Info    APIInfo `json:"info"`
	Message string  `json:"message"`
}

// ReadinessResponse represents the readiness check result
type ReadinessResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]string      `json:"checks,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// StatsFunc returns a JSON-serialisable snapshot of a component
type StatsFunc func() interface{}

// HealthHandler handles the index, healthcheck and readiness endpoints
type HealthHandler struct {
	db      HealthChecker
	project config.ProjectConfig
	logger  *zap.Logger
	stats   map[string]StatsFunc
}

// NewHealthHandler creates a new HealthHandler. db may be nil when storage
// could not be opened at boot.
func NewHealthHandler(db HealthChecker, project config.ProjectConfig, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		project: project,
		logger:  logger,
	}
}

// Report adds the snapshot returned by fn to the readiness details under name
func (h *HealthHandler) Report(name string, fn StatsFunc) *HealthHandler {
	if h.stats == nil {
		h.stats = make(map[string]StatsFunc)
	}
	h.stats[name] = fn
	return h
}

// HandleIndex handles GET /
func (h *HealthHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	result := map[string]string{"cup_of_tea": "c|_|"}
	if name := h.displayName(); name != "" {
		result["project"] = name
	}
	_ = utils.WriteOK(w, result)
}

// HandleHealthcheck handles ANY /api/healthcheck
func (h *HealthHandler) HandleHealthcheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Info: APIInfo{
			Name:      h.displayName(),
			Author:    h.project.Author,
			Version:   h.project.Version,
			License:   h.project.License,
			Copyright: h.project.Copyright,
		},
		Message: "Hello, World!",
	}
	if err := utils.WriteResultWithClient(w, r, http.StatusOK, response); err != nil {
		h.logger.Error("failed to write healthcheck response", zap.Error(err))
	}
}

// HandleReadiness handles GET /api/healthcheck/ready
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status, httpStatus := "healthy", http.StatusOK

	if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		status, httpStatus = "unhealthy", http.StatusServiceUnavailable
	} else {
		checks["database"] = "healthy"
	}

	response := ReadinessResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if len(h.stats) > 0 {
		response.Details = make(map[string]interface{}, len(h.stats))
		for name, fn := range h.stats {
			response.Details[name] = fn()
		}
	}
	if err := utils.WriteResult(w, httpStatus, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return errors.New("database not initialized")
	}
	return h.db.HealthCheck(ctx)
}

func (h *HealthHandler) displayName() string {
	name := strings.TrimSpace(h.project.Name)
	if addr := strings.TrimSpace(h.project.Address); name != "" && addr != "" {
		return name + " @ " + addr
	}
	return name
}
