// Package dto defines API request/response types and error handling.
//
// This package contains all types used for HTTP API communication:
//   - Request types with path/query/json struct tags for parameter binding
//   - Response types with string IDs and camelCase keys
//   - Structured error types with HTTP status codes and error codes
//
// The dto package is the API contract layer. It only borrows storage.Time;
// conversion from the content and identity types is handled by the handlers
// package (in convert.go).
//
// Error handling follows a structured pattern:
//   - ErrorCode provides machine-readable error classification
//   - APIError wraps errors with HTTP status codes and details
//   - Constructor functions (NotFound, BadRequest, etc.) create common errors
package dto

import (
	"fmt"
	"maps"
	"net/http"
	"strconv"
)

// ErrorCode defines specific error types for the API.
type ErrorCode string

const (
	// ErrorCodeValidationFailed is returned when input data fails validation.
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrorCodeMissingField is returned when a required field is missing.
	ErrorCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrorCodeInvalidFormat is returned when a field has an invalid format.
	ErrorCodeInvalidFormat ErrorCode = "INVALID_FORMAT"
	// ErrorCodeFieldNotWritable is returned when a patch names a read-only field.
	ErrorCodeFieldNotWritable ErrorCode = "FIELD_NOT_WRITABLE"
	// ErrorCodeInvalidOrder is returned when a lesson order is not a permutation.
	ErrorCodeInvalidOrder ErrorCode = "INVALID_ORDER"

	// ErrorCodeNotFound is returned when a resource is not found.
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrorCodePublishNotReady is returned when a project is not complete
	// enough to leave edit mode.
	ErrorCodePublishNotReady ErrorCode = "PUBLISH_NOT_READY"
	// ErrorCodeInvalidTransition is returned for a publish mode change that no
	// role may perform.
	ErrorCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	// ErrorCodeInvalidState is returned when the publish mode forbids the operation.
	ErrorCodeInvalidState ErrorCode = "INVALID_STATE"
	// ErrorCodeLocked is returned when another collaborator holds the edit lock.
	ErrorCodeLocked ErrorCode = "LOCKED"

	// ErrorCodeInternal is returned when an unexpected server error occurs.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrorCodeUnauthorized is returned when authentication is missing or invalid.
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrorCodeForbidden is returned when a user has insufficient permissions.
	ErrorCodeForbidden ErrorCode = "FORBIDDEN"
	// ErrorCodeRateLimitExceeded is returned when a client sends too many requests.
	ErrorCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrorCodePayloadTooLarge is returned when the request body exceeds the limit.
	ErrorCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
)

// ErrorDetails defines the structured error information in a response.
type ErrorDetails struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error   ErrorDetails   `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
		details:    make(map[string]any),
	}
}

// WithDetails adds details to the error.
func (e *APIError) WithDetails(details map[string]any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	maps.Copy(e.details, details)
	return e
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// Predefined error constructors for common cases

// NotFound creates a 404 Not Found error.
func NotFound(resource string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrorCodeNotFound, resource+" not found")
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeValidationFailed, message)
}

// MissingField creates a 400 Bad Request error for a missing field.
func MissingField(fieldName string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeMissingField, "Missing required field: "+fieldName)
}

// InvalidField creates a 400 Bad Request error for a malformed field.
func InvalidField(fieldName, reason string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeInvalidFormat, "Invalid "+fieldName+": "+reason).WithDetail("field", fieldName)
}

// Forbidden returns a 403 Forbidden error.
func Forbidden(message string) *APIError {
	return NewAPIError(http.StatusForbidden, ErrorCodeForbidden, message)
}

// Unauthorized returns a 401 Unauthorized error.
func Unauthorized() *APIError {
	return NewAPIError(http.StatusUnauthorized, ErrorCodeUnauthorized, "Unauthorized")
}

// NotReady creates a 400 error carrying the per-lesson readiness errors.
func NotReady(message string, details map[string]any) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodePublishNotReady, message).WithDetails(details)
}

// InvalidTransition creates a 400 error for a forbidden publish mode change.
func InvalidTransition(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeInvalidTransition, message)
}

// InvalidState creates a 409 error when the publish mode forbids an operation.
func InvalidState(message string) *APIError {
	return NewAPIError(http.StatusConflict, ErrorCodeInvalidState, message)
}

// Locked creates a 423 error when another collaborator holds the edit lock.
func Locked(message string) *APIError {
	return NewAPIError(http.StatusLocked, ErrorCodeLocked, message)
}

// Internal returns a 500 Internal Server Error.
func Internal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeInternal, message)
}

// InternalWithError creates a 500 error wrapping an underlying error.
func InternalWithError(message string, err error) *APIError {
	return Internal(message).Wrap(err)
}

// RateLimitExceeded creates a 429 error. retryAfter is in seconds.
func RateLimitExceeded(retryAfter int) *APIError {
	return NewAPIError(http.StatusTooManyRequests, ErrorCodeRateLimitExceeded, "Rate limit exceeded, retry after "+strconv.Itoa(retryAfter)+"s").
		WithDetail("retry_after", retryAfter)
}

// PayloadTooLarge creates a 413 error for an oversized request body.
func PayloadTooLarge(limit int64) *APIError {
	return NewAPIError(http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge, "Request body too large").
		WithDetail("limit", limit)
}
