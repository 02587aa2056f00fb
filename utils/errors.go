package utils

import (
	"errors"
	"net/http"

	"github.com/upb/yapi/services"
	"go.uber.org/zap"
)

// StatusForError maps a domain error to its HTTP status
func StatusForError(err error) int {
	switch {
	case services.IsUnauthorizedError(err):
		return http.StatusUnauthorized
	case services.IsPreconditionError(err):
		return http.StatusPreconditionFailed
	case services.IsNotFoundError(err):
		return http.StatusNotFound
	case services.IsValidationError(err):
		return http.StatusBadRequest
	case services.IsConflictError(err):
		return http.StatusConflict
	case services.IsForbiddenError(err):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// WriteServiceError renders err as an error envelope. Storage outages carry
// the underlying message in data; other internal errors stay generic.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var domainErr *services.DomainError
	if !errors.As(err, &domainErr) || services.IsInternalError(err) {
		logger.Error("internal server error", zap.Error(err))
		if werr := WriteInternalServerError(w, r); werr != nil {
			logger.Error("failed to write internal error response", zap.Error(werr))
		}
		return
	}

	var data interface{}
	switch {
	case services.IsUnavailableError(err):
		logger.Error("database unavailable", zap.Error(err))
		if inner := errors.Unwrap(domainErr); inner != nil {
			data = inner.Error()
		}
	case len(domainErr.Details) > 0:
		data = domainErr.Details
	}

	logger.Debug("handled service error",
		zap.String("type", string(domainErr.Type)),
		zap.String("code", string(domainErr.Code)),
		zap.Any("details", domainErr.Details))

	if werr := WriteError(w, r, StatusForError(err), string(domainErr.Code), domainErr.Message, data); werr != nil {
		logger.Error("failed to write error response", zap.Error(werr))
	}
}
