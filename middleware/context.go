package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/upb/yapi/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// IdentityKey is the context key for the authenticated caller
	IdentityKey contextKey = "identity"
)

// Identity is the caller attached to a request once its token passed every check
type Identity struct {
	UserID  uuid.UUID
	TokenID uuid.UUID
	Payload models.TokenPayload
}

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// GetIdentityFromContext retrieves the authenticated caller from context
func GetIdentityFromContext(ctx context.Context) *Identity {
	if val := ctx.Value(IdentityKey); val != nil {
		if identity, ok := val.(*Identity); ok {
			return identity
		}
	}
	return nil
}

// WithIdentity adds the authenticated caller to the context
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}
