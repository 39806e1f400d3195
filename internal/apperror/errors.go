// Package apperror defines the error kinds surfaced by booking operations.
package apperror

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindValidation      Kind = "validation"
	KindConflict        Kind = "conflict"
	KindAuthorization   Kind = "authorization"
	KindUnauthenticated Kind = "unauthenticated"
	KindNotFound        Kind = "not_found"
	KindState           Kind = "state"
	KindGateway         Kind = "gateway"
)

// Error is a business-rule failure with a user-facing message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so callers can test against the
// package sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

var (
	ErrValidation      = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrConflict        = &Error{Kind: KindConflict, Message: "conflict"}
	ErrAuthorization   = &Error{Kind: KindAuthorization, Message: "permission denied"}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated, Message: "authentication required"}
	ErrNotFound        = &Error{Kind: KindNotFound, Message: "not found"}
	ErrState           = &Error{Kind: KindState, Message: "invalid state"}
	ErrGateway         = &Error{Kind: KindGateway, Message: "payment gateway unavailable"}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(message string) *Error { return New(KindValidation, message) }
func Conflict(message string) *Error { return New(KindConflict, message) }
func Forbidden(message string) *Error { return New(KindAuthorization, message) }
func NotFound(message string) *Error { return New(KindNotFound, message) }
func InvalidState(message string) *Error { return New(KindState, message) }
func Unauthenticated(message string) *Error { return New(KindUnauthenticated, message) }

// HTTPStatus maps err to the response code for its kind. Errors that are not
// an *Error are treated as internal failures.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict, KindState:
		return http.StatusConflict
	case KindAuthorization:
		return http.StatusForbidden
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindGateway:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
