// Package errors defines the portal's service errors. A ServiceError carries
// the HTTP status and stable code rendered in API error bodies.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable machine-readable error identifier.
type ErrorCode string

const (
	CodeBadRequest       ErrorCode = "BAD_REQUEST"
	CodeValidation       ErrorCode = "VALIDATION_FAILED"
	CodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	CodeInvalidToken     ErrorCode = "INVALID_TOKEN"
	CodeNotAuthenticated ErrorCode = "NOT_AUTHENTICATED"
	CodeAuthFailed       ErrorCode = "AUTH_FAILED"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeRateLimited      ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeUpstream         ErrorCode = "UPSTREAM_ERROR"
	CodeUnavailable      ErrorCode = "SERVICE_UNAVAILABLE"
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// ServiceError is an error with an HTTP mapping.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a detail field and returns e.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code ErrorCode, status int, msg string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: msg, HTTPStatus: status, Err: err}
}

// BadRequest reports a malformed request.
func BadRequest(msg string) *ServiceError {
	return newError(CodeBadRequest, http.StatusBadRequest, msg, nil)
}

// Validation reports an invalid field value.
func Validation(field, msg string) *ServiceError {
	return newError(CodeValidation, http.StatusUnprocessableEntity, msg, nil).WithDetails("field", field)
}

// Unauthorized reports missing credentials.
func Unauthorized(msg string) *ServiceError {
	if msg == "" {
		msg = "Unauthorized"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, msg, nil)
}

// InvalidToken reports a bearer token that failed verification.
func InvalidToken(err error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, "Invalid or expired token", err)
}

// NotAuthenticated reports a request that needs a signed-in customer.
func NotAuthenticated() *ServiceError {
	return newError(CodeNotAuthenticated, http.StatusUnauthorized, "Not authenticated", nil)
}

// AuthFailed carries a message from the identity service that is safe to
// show to the user.
func AuthFailed(status int, msg string, err error) *ServiceError {
	return newError(CodeAuthFailed, status, msg, err)
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, resource+" not found", nil).WithDetails("id", id)
}

// RateLimitExceeded reports a throttled caller.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests, "Rate limit exceeded", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Upstream reports a failed call to the data service.
func Upstream(msg string, err error) *ServiceError {
	return newError(CodeUpstream, http.StatusBadGateway, msg, err)
}

// Unavailable reports a dependency that is temporarily refusing calls.
func Unavailable(msg string, err error) *ServiceError {
	return newError(CodeUnavailable, http.StatusServiceUnavailable, msg, err)
}

// Internal reports an unexpected failure.
func Internal(msg string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, msg, err)
}

// GetServiceError returns the ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// Is and As mirror the standard library so callers need one import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// New returns a plain error.
func New(msg string) error { return stderrors.New(msg) }
