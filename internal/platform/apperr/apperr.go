// Package apperr defines the error taxonomy shared by guards, services and
// the HTTP boundary. Every expected denial or conflict carries a stable Code
// plus a human-readable message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-checkable outcome identifier.
type Code string

const (
	CodeValidationFailed Code = "validation_failed"
	CodeNotFound         Code = "not_found"
	CodeUnauthenticated  Code = "unauthenticated"
	CodeForbidden        Code = "forbidden"
	CodeConflict         Code = "conflict"
	CodeDependentsExist  Code = "dependents_exist"
	CodeRateLimited      Code = "rate_limited"
	CodeInternal         Code = "internal"
)

// HTTPStatus maps a code to its response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidationFailed:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict, CodeDependentsExist:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is an application error with a taxonomy code.
type Error struct {
	Code    Code
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code so errors.Is(err, apperr.ErrForbidden)
// works for any forbidden error.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code && t.Message == ""
	}
	return false
}

// Sentinels usable with errors.Is.
var (
	ErrValidation      = &Error{Code: CodeValidationFailed}
	ErrNotFound        = &Error{Code: CodeNotFound}
	ErrUnauthenticated = &Error{Code: CodeUnauthenticated}
	ErrForbidden       = &Error{Code: CodeForbidden}
	ErrConflict        = &Error{Code: CodeConflict}
	ErrDependentsExist = &Error{Code: CodeDependentsExist}
)

func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...interface{}) *Error {
	return New(CodeNotFound, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return New(CodeForbidden, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return New(CodeConflict, format, args...)
}

// Validation builds a ValidationFailed error with field-level detail.
func Validation(fields map[string]string) *Error {
	return &Error{Code: CodeValidationFailed, Message: "request validation failed", Fields: fields}
}

// Invalid is a single-field validation error.
func Invalid(field, msg string) *Error {
	return Validation(map[string]string{field: msg})
}

// CodeOf returns the taxonomy code of err, or CodeInternal when err does not
// carry one.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
