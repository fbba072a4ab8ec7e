// Package apperr holds the error taxonomy shared by every domain package and
// its translation to HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrUnauthenticated   = errors.New("authentication required")
	ErrAuthorization     = errors.New("not authorized")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUpstream marks a transient dependency failure; the caller may retry.
	ErrUpstream = errors.New("upstream failure")
	// ErrUpstreamPermanent marks a dependency failure that will not succeed on retry.
	ErrUpstreamPermanent = errors.New("upstream failure (permanent)")
)

// Error carries a kind from the taxonomy above, a client-safe message and an
// optional cause that is only ever logged.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) error {
	return newErr(ErrValidation, format, args...)
}

func Unauthenticated(format string, args ...interface{}) error {
	return newErr(ErrUnauthenticated, format, args...)
}

func Forbidden(format string, args ...interface{}) error {
	return newErr(ErrAuthorization, format, args...)
}

func NotFound(format string, args ...interface{}) error {
	return newErr(ErrNotFound, format, args...)
}

func Conflict(format string, args ...interface{}) error {
	return newErr(ErrConflict, format, args...)
}

// Upstream wraps a failing dependency call. Timeouts and connection errors are
// retryable; constraint violations are not.
func Upstream(msg string, cause error) error {
	kind := ErrUpstream
	if !Retryable(cause) {
		kind = ErrUpstreamPermanent
	}
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// InvalidTransitionError reports a status change that the state machine forbids.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %q to %q", e.Entity, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// Retryable reports whether err is worth retrying: any class-23 integrity
// violation is permanent, everything else (timeouts, lost connections, serialization
// failures) is not.
func Retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return len(pgErr.Code) < 2 || pgErr.Code[:2] != "23"
	}
	return true
}

// IsUniqueViolation reports whether err is a Postgres unique_violation (23505),
// optionally restricted to a named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// FromDB classifies a persistence error. what names the entity for the
// client-facing message, e.g. "appointment".
func FromDB(err error, what string) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NotFound("%s not found", what)
	}
	if IsUniqueViolation(err, "") {
		return &Error{Kind: ErrConflict, Message: what + " already exists", Cause: err}
	}
	return Upstream("database error", err)
}

// Status maps an error to its HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HTTP converts err into an echo.HTTPError. Client-safe messages are kept for
// 4xx; 5xx responses carry a generic message and keep err as Internal for logging.
func HTTP(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	code := Status(err)
	msg := err.Error()
	var appErr *Error
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if code >= http.StatusInternalServerError {
		msg = http.StatusText(code)
	}
	return echo.NewHTTPError(code, msg).SetInternal(err)
}
