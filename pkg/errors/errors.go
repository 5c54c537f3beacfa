// Package errors carries a stable error code through service layers so the
// HTTP edge and the pubsub consumers can decide status, retry and exposure
// without string matching.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeMatchConflict Code = "MATCH_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code surfaces. ExposeMessage lets the caller's
// message replace PublicMessage in responses.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	ExposeMessage  bool
}

func meta(status int, public string, retryable, details, expose bool) Metadata {
	return Metadata{
		HTTPStatus:     status,
		Retryable:      retryable,
		PublicMessage:  public,
		DetailsAllowed: details,
		ExposeMessage:  expose,
	}
}

var metadataByCode = map[Code]Metadata{
	//                                                              retry  details expose
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", false, true, true),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required", false, false, true),
	CodeForbidden:     meta(http.StatusForbidden, "access denied", false, false, true),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found", false, false, true),
	CodeConflict:      meta(http.StatusConflict, "conflict detected", false, false, true),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, "state transition disallowed", false, true, true),
	CodeMatchConflict: meta(http.StatusConflict, "already resolved", false, true, true),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", false, true, true),
	CodeRateLimit:     meta(http.StatusTooManyRequests, "rate limit exceeded", false, false, true),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error", true, false, false),
	CodeDependency:    meta(http.StatusServiceUnavailable, "dependency unavailable", true, true, false),
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is the coded error every service returns. The zero value of a nil
// *Error reads as CodeInternal.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches a code and message to err. A nil err degrades to New.
func Wrap(code Code, err error, message string) *Error {
	e := New(code, message)
	e.cause = err
	return e
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in the chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost *Error in err's chain has code. An
// inner code wrapped under another one does not count.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// Retryable reports whether a consumer should redeliver after err. Plain
// errors are treated as retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	typed := As(err)
	if typed == nil {
		return true
	}
	return MetadataFor(typed.Code()).Retryable
}
