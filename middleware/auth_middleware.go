package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/yapi/internal/auth"
	"github.com/upb/yapi/internal/observability"
	"github.com/upb/yapi/services"
	"github.com/upb/yapi/utils"
	"go.uber.org/zap"
)

// TokenVerifier checks a raw token against its signature and the token store
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*auth.Claims, error)
}

// PermissionChecker answers whether a user currently holds a permission
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID uuid.UUID, slug string) (bool, error)
}

// GatewayConfig selects which requests need a token and where it is read from
type GatewayConfig struct {
	Header      string   // request header carrying the token
	Protected   string   // path prefix that requires a token
	Passthrough []string // paths under Protected that do not
}

// AuthMiddleware authenticates requests and enforces permissions
type AuthMiddleware struct {
	verifier TokenVerifier
	checker  PermissionChecker
	cfg      GatewayConfig
	logger   *zap.Logger
	log      *observability.ContextLogger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(verifier TokenVerifier, checker PermissionChecker, cfg GatewayConfig, logger *zap.Logger) *AuthMiddleware {
	if cfg.Header == "" {
		cfg.Header = "X-Token"
	}
	if cfg.Protected == "" {
		cfg.Protected = "/api"
	}
	return &AuthMiddleware{
		verifier: verifier,
		checker:  checker,
		cfg:      cfg,
		logger:   logger,
		log:      observability.NewContextLogger(logger),
	}
}

// Gateway authenticates every request under the protected prefix except the
// passthrough paths. Authenticated requests carry an Identity in their context.
func (m *AuthMiddleware) Gateway(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.RequiresToken(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()

		claims, err := m.verifier.Verify(ctx, auth.TokenFromHeader(r, m.cfg.Header))
		if err != nil {
			m.log.Warn(ctx, "request rejected",
				zap.String("path", r.URL.Path),
				zap.String("code", string(services.GetErrorCode(err))))
			utils.WriteServiceError(w, r, err, m.logger)
			return
		}

		identity, err := identityFromClaims(claims)
		if err != nil {
			m.log.Warn(ctx, "token carries invalid identifiers", zap.Error(err))
			utils.WriteServiceError(w, r, services.ErrMalformedToken, m.logger)
			return
		}

		meta := services.RequestMetaFrom(ctx)
		meta.ActorID = identity.UserID
		ctx = services.WithRequestMeta(WithIdentity(ctx, identity), meta)

		m.log.Debug(ctx, "authentication successful",
			zap.String("user_id", identity.UserID.String()))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequiresToken reports whether path is protected and not passthrough.
// A passthrough entry matches the exact path or anything below it.
func (m *AuthMiddleware) RequiresToken(path string) bool {
	if !underPrefix(path, m.cfg.Protected) {
		return false
	}
	for _, p := range m.cfg.Passthrough {
		if underPrefix(path, p) {
			return false
		}
	}
	return true
}

func underPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// RequirePermission is a middleware that requires the caller to hold slug.
// It must run behind Gateway.
func (m *AuthMiddleware) RequirePermission(slug string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			identity := GetIdentityFromContext(ctx)
			if identity == nil {
				m.log.Error(ctx, "identity not found in context")
				utils.WriteServiceError(w, r, services.ErrMissingToken, m.logger)
				return
			}

			allowed, err := m.checker.HasPermission(ctx, identity.UserID, slug)
			if err != nil {
				utils.WriteServiceError(w, r, err, m.logger)
				return
			}
			if !allowed {
				m.log.Warn(ctx, "insufficient permissions",
					zap.String("user_id", identity.UserID.String()),
					zap.String("required_permission", slug))
				err := services.ErrInsufficientPermissions.Wrap(nil).WithDetail("permission", slug)
				utils.WriteServiceError(w, r, err, m.logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func identityFromClaims(claims *auth.Claims) (*Identity, error) {
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	tokenID, err := claims.TokenID()
	if err != nil {
		return nil, err
	}
	if userID != claims.Payload.ID {
		return nil, errors.New("subject does not match payload")
	}
	return &Identity{UserID: userID, TokenID: tokenID, Payload: claims.Payload}, nil
}
