// Package apperr defines the error taxonomy shared by every domain package
// and its mapping onto HTTP responses. Callers branch with errors.Is against
// the sentinel values (ErrConflict, ErrValidation, ...).
package apperr

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies an error for callers and for the HTTP layer.
type Kind string

const (
	KindConflict        Kind = "conflict"
	KindValidation      Kind = "validation"
	KindForbidden       Kind = "forbidden"
	KindUnauthenticated Kind = "unauthenticated"
	KindNotFound        Kind = "not_found"
	KindTransient       Kind = "transient"
	KindInternal        Kind = "internal"
)

// Sentinels usable as errors.Is targets.
var (
	ErrConflict        = &Error{Kind: KindConflict}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrTransient       = &Error{Kind: KindTransient}
	ErrInternal        = &Error{Kind: KindInternal}
)

// Error is a classified error with a user-facing message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func Conflict(msg string) error        { return &Error{Kind: KindConflict, Msg: msg} }
func Validation(msg string) error      { return &Error{Kind: KindValidation, Msg: msg} }
func Forbidden(msg string) error       { return &Error{Kind: KindForbidden, Msg: msg} }
func Unauthenticated(msg string) error { return &Error{Kind: KindUnauthenticated, Msg: msg} }
func NotFound(msg string) error        { return &Error{Kind: KindNotFound, Msg: msg} }

// Transient marks a failure whose outcome the caller may retry.
func Transient(msg string, err error) error {
	return &Error{Kind: KindTransient, Msg: msg, Err: err}
}

// Internal wraps an unexpected failure.
func Internal(err error) error {
	return &Error{Kind: KindInternal, Msg: "internal error", Err: err}
}

// KindOf returns the Kind of err. Unclassified errors are internal, except
// context deadlines which are transient.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindInternal
}

// HTTPStatus maps a Kind to its HTTP status code.
func HTTPStatus(k Kind) int {
	switch k {
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Body is the JSON error payload returned to clients.
type Body struct {
	Error   Kind   `json:"error"`
	Message string `json:"message"`
}

// ToHTTP converts err into an *echo.HTTPError carrying a Body. Internal
// errors are reported without their cause.
func ToHTTP(err error) *echo.HTTPError {
	kind := KindOf(err)
	msg := "internal error"
	var e *Error
	switch {
	case kind == KindInternal:
	case errors.As(err, &e) && e.Msg != "":
		msg = e.Msg
	case kind == KindTransient:
		msg = "temporarily unavailable, retry"
	}
	he := echo.NewHTTPError(HTTPStatus(kind), Body{Error: kind, Message: msg})
	return he.SetInternal(err)
}

// Respond writes err through ToHTTP and sets Retry-After for transient
// failures. Handlers return its result directly.
func Respond(c echo.Context, err error) error {
	he := ToHTTP(err)
	if he.Code == http.StatusServiceUnavailable {
		c.Response().Header().Set("Retry-After", "1")
	}
	return he
}
