// Package errors defines the service error taxonomy used across the
// storefront. Every error that reaches an HTTP handler is either a
// *ServiceError or is treated as an internal failure.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable machine-readable error identifier.
type ErrorCode string

const (
	CodeBadRequest   ErrorCode = "bad_request"
	CodeValidation   ErrorCode = "validation_failed"
	CodeUnauthorized ErrorCode = "unauthorized"
	CodeInvalidToken ErrorCode = "invalid_token"
	CodeForbidden    ErrorCode = "forbidden"
	CodeNotFound     ErrorCode = "not_found"
	CodeConflict     ErrorCode = "conflict"
	CodeExpired      ErrorCode = "expired"
	CodeRateLimited  ErrorCode = "rate_limited"
	CodeUpstream     ErrorCode = "upstream_error"
	CodeInternal     ErrorCode = "internal_error"
)

// ServiceError carries an HTTP status alongside a client-safe message.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a detail key/value and returns the same error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code ErrorCode, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

func BadRequest(message string) *ServiceError {
	return newError(CodeBadRequest, http.StatusBadRequest, message, nil)
}

// Validation reports a field that failed validation.
func Validation(field, message string) *ServiceError {
	return newError(CodeValidation, http.StatusBadRequest, message, nil).WithDetails("field", field)
}

func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "authentication required"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

func InvalidToken(err error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, "invalid or expired token", err)
}

func Forbidden(message string) *ServiceError {
	if message == "" {
		message = "forbidden"
	}
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

func NotFound(resource, id string) *ServiceError {
	msg := resource + " not found"
	return newError(CodeNotFound, http.StatusNotFound, msg, nil).WithDetails("id", id)
}

func Conflict(message string) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, message, nil)
}

// Expired reports a resource whose lifetime has ended. It maps to 409 so
// clients can restart the flow.
func Expired(message string) *ServiceError {
	return newError(CodeExpired, http.StatusConflict, message, nil)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests, "rate limit exceeded", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Upstream wraps a failure of an external dependency (gateway, CDN, mail).
func Upstream(service string, err error) *ServiceError {
	return newError(CodeUpstream, http.StatusBadGateway, service+" unavailable", err)
}

func Internal(message string, err error) *ServiceError {
	if message == "" {
		message = "internal server error"
	}
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// GetServiceError extracts a *ServiceError from the chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// HTTPStatus returns the status associated with err (500 when unknown).
func HTTPStatus(err error) int {
	if se := GetServiceError(err); se != nil {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}
