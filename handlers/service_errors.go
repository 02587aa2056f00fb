package handlers

import (
	"net/http"

	"github.com/upb/yapi/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP error envelopes:
// unauthorized 401, immutable field 412, not found 404, validation 400,
// conflict 409, forbidden 403, storage and internal failures 500.
func HandleServiceError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	utils.WriteServiceError(w, r, err, logger)
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	fields := utils.GetValidationFields(err)
	if fields == nil {
		fields = map[string]string{"request": err.Error()}
	}
	if err := utils.WriteBadRequest(w, r, "Validation failed", fields); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
