package error

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode represents a unique error code
type ErrorCode string

// Error codes for different categories
const (
	// Authentication Errors (1xxx)
	ErrCodeInvalidCredentials ErrorCode = "AUTH_1001"
	ErrCodeMissingToken       ErrorCode = "AUTH_1002"
	ErrCodeInvalidToken       ErrorCode = "AUTH_1003"
	ErrCodeTokenExpired       ErrorCode = "AUTH_1004"
	ErrCodeForbidden          ErrorCode = "AUTH_1005"

	// Validation Errors (2xxx)
	ErrCodeInvalidRequest     ErrorCode = "VALID_2001"
	ErrCodeMalformedPayload   ErrorCode = "VALID_2002"
	ErrCodeSchemaViolation    ErrorCode = "VALID_2003"
	ErrCodeDisallowedContent  ErrorCode = "VALID_2004"
	ErrCodeInvalidQueryFilter ErrorCode = "VALID_2005"

	// Rate Limiting Errors (3xxx)
	ErrCodeRateLimitExceeded ErrorCode = "RATE_3001"
	ErrCodeTooManyAttempts   ErrorCode = "RATE_3002"

	// Database Errors (5xxx)
	ErrCodeDatabaseError    ErrorCode = "DB_5001"
	ErrCodeAuditWriteFailed ErrorCode = "DB_5002"

	// Server Errors (6xxx)
	ErrCodeInternalServerError  ErrorCode = "SERVER_6001"
	ErrCodeServiceUnavailable   ErrorCode = "SERVER_6002"
	ErrCodeConfigurationError   ErrorCode = "SERVER_6003"
	ErrCodeExternalServiceError ErrorCode = "SERVER_6004"

	// Security Errors (7xxx)
	ErrCodeSecurityViolation  ErrorCode = "SEC_7001"
	ErrCodeSuspiciousActivity ErrorCode = "SEC_7002"
	ErrCodeUnauthorizedAccess ErrorCode = "SEC_7003"
)

const (
	prefixAuth       = "AUTH_"
	prefixValidation = "VALID_"
	prefixRate       = "RATE_"
	prefixDatabase   = "DB_"
	prefixServer     = "SERVER_"
	prefixSecurity   = "SEC_"
)

// AppError represents a structured application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the cause error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// Authentication errors
func ErrMissingToken() *AppError {
	return NewAppError(ErrCodeMissingToken, "Authorization token required", "", nil)
}

func ErrInvalidToken(details string) *AppError {
	return NewAppError(ErrCodeInvalidToken, "Invalid token", details, nil)
}

func ErrTokenExpired(details string) *AppError {
	return NewAppError(ErrCodeTokenExpired, "Token has expired", details, nil)
}

func ErrForbidden(details string) *AppError {
	return NewAppError(ErrCodeForbidden, "Insufficient permissions", details, nil)
}

// Validation errors
func ErrInvalidRequest(details string) *AppError {
	return NewAppError(ErrCodeInvalidRequest, "Invalid request", details, nil)
}

func ErrMalformedPayload(cause error) *AppError {
	return NewAppError(ErrCodeMalformedPayload, "Invalid request payload", "", cause)
}

func ErrInvalidQueryFilter(field string) *AppError {
	return NewAppError(ErrCodeInvalidQueryFilter, "Invalid query filter", fmt.Sprintf("Field: %s", field), nil)
}

// Rate limiting errors
func ErrRateLimitExceeded(attempts int64, window string) *AppError {
	return NewAppError(ErrCodeRateLimitExceeded, "Too many requests", fmt.Sprintf("Attempts: %d, Window: %s", attempts, window), nil)
}

// Database errors
func ErrDatabaseError(operation string, cause error) *AppError {
	return NewAppError(ErrCodeDatabaseError, "Database operation failed", fmt.Sprintf("Operation: %s", operation), cause)
}

func ErrAuditWriteFailed(cause error) *AppError {
	return NewAppError(ErrCodeAuditWriteFailed, "Audit write failed", "", cause)
}

// Server errors
func ErrInternalServerError(details string, cause error) *AppError {
	return NewAppError(ErrCodeInternalServerError, "Internal server error", details, cause)
}

func ErrServiceUnavailable(service string) *AppError {
	return NewAppError(ErrCodeServiceUnavailable, "Service temporarily unavailable", fmt.Sprintf("Service: %s", service), nil)
}

func ErrConfigurationError(config string) *AppError {
	return NewAppError(ErrCodeConfigurationError, "Configuration error", fmt.Sprintf("Config: %s", config), nil)
}

// Security errors
func ErrSecurityViolation(details string) *AppError {
	return NewAppError(ErrCodeSecurityViolation, "Security violation detected", details, nil)
}

func ErrUnauthorizedAccess(resource string) *AppError {
	return NewAppError(ErrCodeUnauthorizedAccess, "Unauthorized access", fmt.Sprintf("Resource: %s", resource), nil)
}

// GetHTTPStatusCode maps an error to the HTTP status the API responds with.
func GetHTTPStatusCode(err error) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}

	code := string(appErr.Code)
	switch {
	case appErr.Code == ErrCodeForbidden:
		return http.StatusForbidden
	case strings.HasPrefix(code, prefixAuth):
		return http.StatusUnauthorized
	case strings.HasPrefix(code, prefixValidation):
		return http.StatusBadRequest
	case strings.HasPrefix(code, prefixRate):
		return http.StatusTooManyRequests
	case strings.HasPrefix(code, prefixDatabase):
		return http.StatusServiceUnavailable
	case strings.HasPrefix(code, prefixSecurity):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// IsAuthorizationError reports whether err is an authentication or access-control failure.
func IsAuthorizationError(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return strings.HasPrefix(string(appErr.Code), prefixAuth) || appErr.Code == ErrCodeUnauthorizedAccess
}

// IsValidationError reports whether err is a request validation failure.
func IsValidationError(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return strings.HasPrefix(string(appErr.Code), prefixValidation)
}

// ErrorResponse is the error body for API responses
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   *AppError `json:"error"`
	TraceID string    `json:"trace_id,omitempty"`
}

// NewErrorResponse creates a new error response
func NewErrorResponse(err *AppError, traceID string) *ErrorResponse {
	return &ErrorResponse{
		Success: false,
		Error:   err,
		TraceID: traceID,
	}
}
