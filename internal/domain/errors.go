package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation    ErrorKind = "VALIDATION"
	KindConflict      ErrorKind = "CONFLICT"
	KindAuthorization ErrorKind = "AUTHORIZATION"
	KindNotFound      ErrorKind = "NOT_FOUND"
	KindUnavailable   ErrorKind = "UNAVAILABLE"
)

const (
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeLeadTimeViolation = "LEAD_TIME_VIOLATION"
	CodeSlotConflict      = "SLOT_CONFLICT"
	CodeSlotUnavailable   = "SLOT_UNAVAILABLE"
	CodeStaleCart         = "STALE_CART"
	CodeInvalidState      = "INVALID_STATE"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeUnavailable       = "UNAVAILABLE"
)

// Error is the error type surfaced to callers of the engine. Two errors
// are considered equal by errors.Is when their codes match, so the
// sentinels below can be used to classify any *Error.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetail returns a copy of e carrying an extra detail entry.
func (e *Error) WithDetail(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrValidation        = newError(KindValidation, CodeValidationFailed, "invalid input")
	ErrLeadTimeViolation = newError(KindValidation, CodeLeadTimeViolation, "slot starts too soon")
	ErrSlotConflict      = newError(KindConflict, CodeSlotConflict, "slot already open")
	ErrSlotUnavailable   = newError(KindConflict, CodeSlotUnavailable, "slot is not available")
	ErrStaleCart         = newError(KindConflict, CodeStaleCart, "cart items are no longer held")
	ErrInvalidState      = newError(KindConflict, CodeInvalidState, "operation not allowed in current state")
	ErrUnauthorized      = newError(KindAuthorization, CodeUnauthorized, "caller does not own the resource")
	ErrForbidden         = newError(KindAuthorization, CodeForbidden, "forbidden")
	ErrNotFound          = newError(KindNotFound, CodeNotFound, "not found")
	ErrUnavailable       = newError(KindUnavailable, CodeUnavailable, "storage unavailable")
)

// Validation builds a VALIDATION_FAILED error with a specific message.
func Validation(format string, args ...any) *Error {
	return newError(KindValidation, CodeValidationFailed, fmt.Sprintf(format, args...))
}

// NotFound builds a NOT_FOUND error naming the missing entity.
func NotFound(entity string) *Error {
	return newError(KindNotFound, CodeNotFound, entity+" not found")
}

func InvalidState(format string, args ...any) *Error {
	return newError(KindConflict, CodeInvalidState, fmt.Sprintf(format, args...))
}

func Forbidden(msg string) *Error {
	return newError(KindAuthorization, CodeForbidden, msg)
}

// Unavailable wraps a persistence failure that callers may retry.
func Unavailable(cause error) *Error {
	e := newError(KindUnavailable, CodeUnavailable, "storage unavailable")
	e.cause = cause
	return e
}

// KindOf reports the kind of err, or "" when err is not a domain error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
