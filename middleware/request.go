package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/yapi/services"
	"github.com/upb/yapi/utils"
	"go.uber.org/zap"
)

// RequestMeta stores the request ID, client address and user agent in the
// context so services can stamp audit entries with them. Run it after
// chi's RequestID and RealIP.
func RequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := services.WithRequestMeta(r.Context(), services.RequestMeta{
			RequestID: GetRequestIDFromContext(r.Context()),
			IPAddress: r.RemoteAddr,
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger logs each HTTP request with method, path, status, size and duration
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			}
			if identity := GetIdentityFromContext(r.Context()); identity != nil {
				fields = append(fields, zap.String("user_id", identity.UserID.String()))
			}

			switch {
			case status >= http.StatusInternalServerError:
				logger.Error("http request", fields...)
			case status >= http.StatusBadRequest:
				logger.Info("http request", fields...)
			default:
				logger.Debug("http request", fields...)
			}
		})
	}
}

// Recoverer turns handler panics into 500 envelopes without stack traces
func Recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered in HTTP handler",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", GetRequestIDFromContext(r.Context())),
					zap.Stack("stack"))
				_ = utils.WriteInternalServerError(w, r)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Unavailable answers every request not matched by allow with a
// DatabaseUnavailable envelope. It serves a process that could not reach
// storage at boot.
func Unavailable(cause error, allow func(path string) bool, logger *zap.Logger) func(http.Handler) http.Handler {
	err := services.ErrDatabaseUnavailable.Wrap(cause)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allow != nil && allow(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			utils.WriteServiceError(w, r, err, logger)
		})
	}
}
