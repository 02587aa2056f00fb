package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/upb/yapi/models"
)

// PayloadLoader populates the role, groups and attributes of a user and
// answers permission questions about it
type PayloadLoader interface {
	// LoadUser fills user.Role (with its permissions), user.Groups and user.Attributes
	LoadUser(ctx context.Context, user *models.User) error

	// InvalidateRole drops any cached copy of a role
	InvalidateRole(roleID uuid.UUID)

	// InvalidatePermission drops cached roles granting a permission
	InvalidatePermission(permissionID uuid.UUID)
}

// Auditor receives audit trail entries. Implementations must not block.
type Auditor interface {
	Record(log *models.AuditLog)
}

// NopAuditor discards every entry
type NopAuditor struct{}

// Record implements Auditor
func (NopAuditor) Record(*models.AuditLog) {}

// RequestMeta describes the HTTP request a service call originates from
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
	ActorID   uuid.UUID // authenticated caller, uuid.Nil when anonymous
}

type requestMetaKey struct{}

// WithRequestMeta stores request metadata in ctx for audit entries
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom returns the request metadata stored in ctx, if any
func RequestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

// auditEntry starts an audit log stamped with the request metadata in ctx
func auditEntry(ctx context.Context, action models.AuditAction, resourceType string) *models.AuditLog {
	meta := RequestMetaFrom(ctx)
	entry := models.NewAuditLog(action, resourceType).WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
	if meta.ActorID != uuid.Nil {
		entry.WithUser(meta.ActorID)
	}
	return entry
}
