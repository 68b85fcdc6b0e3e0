// Package apperr defines the coded error taxonomy shared by every layer of
// the approvals service. Handlers map codes to HTTP statuses; services never
// inspect error strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for callers.
type Code string

const (
	CodeValidation Code = "VALIDATION"
	CodeNotFound   Code = "NOT_FOUND"
	CodeForbidden  Code = "FORBIDDEN"
	CodeConflict   Code = "CONFLICT"
	CodeBadRequest Code = "BAD_REQUEST"
	CodeInternal   Code = "SERVER_ERROR"
)

// Error is a coded application error, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// InvalidInput reports a validation failure on a named field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf("%s: %s", field, message)}
}

// Forbidden reports an authorization failure.
func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message}
}

// Conflict reports a precondition failure on current state.
func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

// CodeOf extracts the code from an error chain, defaulting to SERVER_ERROR.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf extracts the caller-facing message from an error chain. Internal
// errors are not exposed verbatim.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != CodeInternal {
		return e.Message
	}
	return "internal server error"
}

// HTTPStatus maps an error's code to an HTTP status.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeValidation, CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
