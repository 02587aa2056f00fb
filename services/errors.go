package services

import (
	"errors"
	"fmt"

	"github.com/upb/yapi/repositories"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypePrecondition ErrorType = "precondition"
	ErrorTypeUnavailable  ErrorType = "unavailable"
	ErrorTypeInternal     ErrorType = "internal"
)

// ErrorCode is the machine readable code rendered to API clients
type ErrorCode string

const (
	CodeInvalidIdentifier       ErrorCode = "InvalidIdentifier"
	CodeInvalidPassword         ErrorCode = "InvalidPassword"
	CodeMissingToken            ErrorCode = "MissingToken"
	CodeMalformedToken          ErrorCode = "MalformedToken"
	CodeInvalidSignature        ErrorCode = "InvalidSignature"
	CodeTokenRevoked            ErrorCode = "TokenRevoked"
	CodeTokenExpired            ErrorCode = "TokenExpired"
	CodeImmutableFieldViolation ErrorCode = "ImmutableFieldViolation"
	CodeDatabaseUnavailable     ErrorCode = "DatabaseUnavailable"
	CodeNotFound                ErrorCode = "NotFound"
	CodeMethodNotAllowed        ErrorCode = "MethodNotAllowed"
	CodeValidationFailed        ErrorCode = "ValidationFailed"
	CodeConflict                ErrorCode = "Conflict"
	CodeInsufficientPermissions ErrorCode = "InsufficientPermissions"
	CodeProtectedGroup          ErrorCode = "ProtectedGroup"
	CodeInternalError           ErrorCode = "InternalError"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Code    ErrorCode
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on type, and on code when the target carries one
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if e.Type != t.Type {
		return false
	}
	return t.Code == "" || e.Code == t.Code
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Wrap returns a copy of e carrying err as its cause. Sentinels stay untouched.
func (e *DomainError) Wrap(err error) *DomainError {
	return &DomainError{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

var (
	// Credential errors
	ErrInvalidIdentifier = NewDomainError(ErrorTypeUnauthorized, CodeInvalidIdentifier, "unknown or disabled account", nil)
	ErrInvalidPassword   = NewDomainError(ErrorTypeUnauthorized, CodeInvalidPassword, "password does not match", nil)

	// Token errors
	ErrMissingToken     = NewDomainError(ErrorTypeUnauthorized, CodeMissingToken, "authentication token required", nil)
	ErrMalformedToken   = NewDomainError(ErrorTypeUnauthorized, CodeMalformedToken, "authentication token is malformed", nil)
	ErrInvalidSignature = NewDomainError(ErrorTypeUnauthorized, CodeInvalidSignature, "authentication token signature is invalid", nil)
	ErrTokenRevoked     = NewDomainError(ErrorTypeUnauthorized, CodeTokenRevoked, "authentication token has been revoked", nil)
	ErrTokenExpired     = NewDomainError(ErrorTypeUnauthorized, CodeTokenExpired, "authentication token expired", nil)

	// Not found errors
	ErrNotFound           = NewDomainError(ErrorTypeNotFound, CodeNotFound, "resource not found", nil)
	ErrUserNotFound       = NewDomainError(ErrorTypeNotFound, CodeNotFound, "user not found", nil)
	ErrRoleNotFound       = NewDomainError(ErrorTypeNotFound, CodeNotFound, "role not found", nil)
	ErrPermissionNotFound = NewDomainError(ErrorTypeNotFound, CodeNotFound, "permission not found", nil)
	ErrGroupNotFound      = NewDomainError(ErrorTypeNotFound, CodeNotFound, "group not found", nil)

	// Validation errors
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, CodeValidationFailed, "invalid input", nil)
	ErrInvalidSlug  = NewDomainError(ErrorTypeValidation, CodeValidationFailed, "invalid slug format", nil)
	ErrInvalidEmail = NewDomainError(ErrorTypeValidation, CodeValidationFailed, "invalid email format", nil)

	// Precondition errors
	ErrImmutableField = NewDomainError(ErrorTypePrecondition, CodeImmutableFieldViolation, "field cannot be changed once set", nil)

	// Permission errors
	ErrInsufficientPermissions = NewDomainError(ErrorTypeForbidden, CodeInsufficientPermissions, "insufficient permissions", nil)
	ErrProtectedGroup          = NewDomainError(ErrorTypeForbidden, CodeProtectedGroup, "protected groups cannot be deleted", nil)

	// Conflict errors
	ErrConflict          = NewDomainError(ErrorTypeConflict, CodeConflict, "resource already exists", nil)
	ErrDuplicateUsername = NewDomainError(ErrorTypeConflict, CodeConflict, "username already exists", nil)
	ErrDuplicateEmail    = NewDomainError(ErrorTypeConflict, CodeConflict, "email already exists", nil)
	ErrDuplicateSlug     = NewDomainError(ErrorTypeConflict, CodeConflict, "slug already exists", nil)

	// Storage and internal errors
	ErrDatabaseUnavailable = NewDomainError(ErrorTypeUnavailable, CodeDatabaseUnavailable, "database unavailable", nil)
	ErrInternal            = NewDomainError(ErrorTypeInternal, CodeInternalError, "internal server error", nil)
)

func hasType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return hasType(err, ErrorTypeUnauthorized)
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return hasType(err, ErrorTypeForbidden)
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return hasType(err, ErrorTypeConflict)
}

// IsPreconditionError checks if an error is a failed precondition
func IsPreconditionError(err error) bool {
	return hasType(err, ErrorTypePrecondition)
}

// IsUnavailableError checks if an error means storage could not be reached
func IsUnavailableError(err error) bool {
	return hasType(err, ErrorTypeUnavailable)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorCode returns the client code of a domain error, InternalError otherwise
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternalError
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, CodeInternalError, message, err)
}

// FromRepository maps storage sentinels to domain errors. notFound is used
// for repositories.ErrNotFound and conflict for repositories.ErrDuplicate.
func FromRepository(err error, notFound, conflict *DomainError) error {
	var domainErr *DomainError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, repositories.ErrUnavailable):
		return ErrDatabaseUnavailable.Wrap(err)
	case errors.Is(err, repositories.ErrNotFound) && notFound != nil:
		return notFound.Wrap(err)
	case errors.Is(err, repositories.ErrDuplicate) && conflict != nil:
		return conflict.Wrap(err)
	default:
		return WrapInternal("storage operation failed", err)
	}
}
