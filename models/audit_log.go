package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionLoginSucceeded   AuditAction = "login_succeeded"
	AuditActionLoginFailed      AuditAction = "login_failed"
	AuditActionLogout           AuditAction = "logout"
	AuditActionTokenRejected    AuditAction = "token_rejected"
	AuditActionUserCreated      AuditAction = "user_created"
	AuditActionUserUpdated      AuditAction = "user_updated"
	AuditActionUserDeleted      AuditAction = "user_deleted"
	AuditActionRoleCreated      AuditAction = "role_created"
	AuditActionRoleUpdated      AuditAction = "role_updated"
	AuditActionPermissionCreate AuditAction = "permission_created"
	AuditActionGroupCreated     AuditAction = "group_created"
	AuditActionGroupDeleted     AuditAction = "group_deleted"
	AuditActionMembership       AuditAction = "group_membership_changed"
)

// AuditLog represents an audit trail entry
type AuditLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	UserID       *uuid.UUID      `json:"user_id,omitempty" db:"user_id"` // acting user, when known
	Action       AuditAction     `json:"action" db:"action"`
	ResourceType string          `json:"resource_type" db:"resource_type"` // user, role, group, token...
	ResourceID   *uuid.UUID      `json:"resource_id,omitempty" db:"resource_id"`
	Details      json.RawMessage `json:"details,omitempty" db:"details"`
	IPAddress    string          `json:"ip_address" db:"ip_address"`
	UserAgent    string          `json:"user_agent" db:"user_agent"`
	RequestID    string          `json:"request_id" db:"request_id"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
	StatusCode   *int            `json:"status_code,omitempty" db:"status_code"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction, resourceType string) *AuditLog {
	return &AuditLog{
		ID:           uuid.New(),
		Action:       action,
		ResourceType: resourceType,
		Timestamp:    time.Now().UTC(),
	}
}

// WithUser sets the acting user ID
func (a *AuditLog) WithUser(userID uuid.UUID) *AuditLog {
	a.UserID = &userID
	return a
}

// WithResource sets the resource ID
func (a *AuditLog) WithResource(resourceID uuid.UUID) *AuditLog {
	a.ResourceID = &resourceID
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}

// WithError sets error information
func (a *AuditLog) WithError(statusCode int, errorMessage string) *AuditLog {
	a.StatusCode = &statusCode
	a.ErrorMessage = &errorMessage
	return a
}
