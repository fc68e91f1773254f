// Package fault defines the application error taxonomy shared by every layer.
// A *Error carries a Kind that maps to an HTTP status at the boundary; the
// Internal kind hides its cause from callers while keeping it available for
// logging via errors.Unwrap.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application failure.
type Kind int

const (
	Internal Kind = iota
	Unauthorized
	Forbidden
	NotFound
	Validation
	Conflict
)

func (k Kind) String() string {
	switch k {
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified application failure.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return e.kind.String() + " error"
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error classification.
func (e *Error) Kind() Kind { return e.kind }

// New constructs a classified error with a caller-visible message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func Unauthorizedf(format string, args ...any) *Error { return New(Unauthorized, format, args...) }
func Forbiddenf(format string, args ...any) *Error    { return New(Forbidden, format, args...) }
func NotFoundf(format string, args ...any) *Error     { return New(NotFound, format, args...) }
func Validationf(format string, args ...any) *Error   { return New(Validation, format, args...) }
func Conflictf(format string, args ...any) *Error     { return New(Conflict, format, args...) }

// Internalf wraps an unexpected failure. The cause stays reachable through
// Unwrap for server-side logging; Error() reports only a generic message so
// internal detail never crosses the system boundary.
func Internalf(cause error) *Error {
	return &Error{kind: Internal, msg: "internal error", cause: cause}
}

// KindOf reports the classification of err. Unclassified errors are Internal.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind, true
	}
	return Internal, false
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// HTTPStatus maps err to the status code surfaced to clients.
func HTTPStatus(err error) int {
	kind, ok := KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Validation:
		return http.StatusUnprocessableEntity
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
