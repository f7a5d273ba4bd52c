// Package errors provides the typed error envelope used across the gateway:
// every error that can cross the Service Facade boundary carries a stable
// type string and maps to an HTTP status code.
package errors

import "net/http"

// ErrorType is a qualified, stable identifier for an error kind. It matches
// the "type" field of the error envelope returned to callers.
type ErrorType string

// Error types, matching the gateway's error envelope qualified ids.
const (
	ErrBadRequest          ErrorType = "bad_request.v1"
	ErrForbidden           ErrorType = "forbidden.v1"
	ErrNotFound            ErrorType = "not_found.v1"
	ErrConflict            ErrorType = "conflict.v1"
	ErrValidationFailed    ErrorType = "validation_failed.v1"
	ErrInternal            ErrorType = "internal.v1"
	ErrThrottled           ErrorType = "gateway.throttled.v1"
	ErrUpstreamUnreachable ErrorType = "gateway.upstream_unreachable.v1"
)

// Error is the typed error carried through the pipeline and surfaced to
// callers via the error envelope.
type Error struct {
	Type ErrorType
	// Message is safe to return to the caller for 4xx types.
	Message string
	Cause   error
	// Metadata holds envelope-specific fields, e.g. retry_after_ms or alias.
	Metadata map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Type) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Type) + ": " + e.Message
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError constructs a typed Error.
func NewError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

// WithMetadata attaches envelope metadata and returns the same error for chaining.
func (e *Error) WithMetadata(kv map[string]any) *Error {
	e.Metadata = kv
	return e
}

// Constructors, one per error type, mirroring the envelope's qualified ids.

// NewBadRequestError builds a bad_request.v1 error.
func NewBadRequestError(message string, cause error) *Error {
	return NewError(ErrBadRequest, message, cause)
}

// NewForbiddenError builds a forbidden.v1 error.
func NewForbiddenError(message string, cause error) *Error {
	return NewError(ErrForbidden, message, cause)
}

// NewNotFoundError builds a not_found.v1 error.
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// NewConflictError builds a conflict.v1 error.
func NewConflictError(message string, cause error) *Error {
	return NewError(ErrConflict, message, cause)
}

// NewValidationFailedError builds a validation_failed.v1 error.
func NewValidationFailedError(message string, cause error) *Error {
	return NewError(ErrValidationFailed, message, cause)
}

// NewInternalError builds an internal.v1 error.
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// NewThrottledError builds a gateway.throttled.v1 error with retry_after_ms metadata.
func NewThrottledError(message string, retryAfterMs int64) *Error {
	return NewError(ErrThrottled, message, nil).WithMetadata(map[string]any{
		"retry_after_ms": retryAfterMs,
	})
}

// NewUpstreamUnreachableError builds a gateway.upstream_unreachable.v1 error.
func NewUpstreamUnreachableError(message string, cause error) *Error {
	return NewError(ErrUpstreamUnreachable, message, cause)
}

// Code maps an error to its HTTP status. Errors that are not *Error map to 500.
func Code(err error) int {
	var e *Error
	if !asError(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Type {
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrForbidden:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrValidationFailed:
		return http.StatusUnprocessableEntity
	case ErrThrottled:
		return http.StatusTooManyRequests
	case ErrUpstreamUnreachable:
		return http.StatusBadGateway
	case ErrInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Is reports whether err is an *Error of the given type.
func Is(err error, t ErrorType) bool {
	var e *Error
	if !asError(err, &e) {
		return false
	}
	return e.Type == t
}

// TypeOf returns err's qualified type id, or ErrInternal if err is not an *Error.
func TypeOf(err error) ErrorType {
	var e *Error
	if !asError(err, &e) {
		return ErrInternal
	}
	return e.Type
}

// MessageOf returns err's caller-safe message, or err.Error() if err is not an *Error.
func MessageOf(err error) string {
	var e *Error
	if !asError(err, &e) {
		return err.Error()
	}
	return e.Message
}

// MetadataOf returns err's envelope metadata, or nil if err is not an
// *Error or carries none.
func MetadataOf(err error) map[string]any {
	var e *Error
	if !asError(err, &e) {
		return nil
	}
	return e.Metadata
}

// asError extracts an *Error from err, including wrapped chains.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok { //nolint:errorlint // this is the unwrap loop itself
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error }) //nolint:errorlint
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
