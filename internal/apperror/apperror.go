// Package apperror defines the domain error taxonomy shared by every layer.
//
// Services return *AppError values wrapping one of the sentinel errors below.
// The HTTP layer maps the sentinel to a status code with errors.Is, so no
// service ever needs to know about net/http.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// AppError carries one of the sentinels above plus the text shown to the
// client.
//
// HOW IT IS USED:
// Repositories and services return *AppError; handlers never inspect the
// message, they only ask errors.Is(err, apperror.ErrNotFound) and so on to
// pick the status code. Unwrap is what makes errors.Is see the sentinel
// through the wrapper, and through any fmt.Errorf("...: %w") added on top.
type AppError struct {
	Err     error               // actual error
	Message string              // Human-readable error message
	Field   string              // Optional: field causing the error
	Fields  map[string][]string // Optional: every invalid field with its messages
}

// Error returns the client-facing message.
func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes the sentinel to errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports a missing resource. The message matches what clients of
// the API have always received, e.g. "recipe not found".
func NotFound(resource string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// ValidationFailed is a validation error on a single field, e.g. an upload
// that is not an image.
func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
		Fields:  map[string][]string{field: {message}},
	}
}

// Invalid bundles several field-level validation messages into one error.
func Invalid(fields map[string][]string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: "Validation errors",
		Fields:  fields,
	}
}

// Conflict reports a uniqueness violation. message is returned verbatim,
// e.g. "username already used".
func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized means the caller has no valid identity for the operation.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}
