// Package apperr defines the error taxonomy shared by services and the HTTP layer.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error independently of its wire representation.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFoundOrForbidden
	KindNotFound
	KindValidation
	KindConflict
	KindStorage
	KindUnavailable
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFoundOrForbidden:
		return "not_found_or_forbidden"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindStorage:
		return "storage"
	case KindUnavailable:
		return "unavailable"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is a typed application error with HTTP awareness.
type Error struct {
	Kind    Kind              `json:"-"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Status  int               `json:"-"`
	Fields  map[string]string `json:"fields,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether the caller may repeat the request unchanged.
func (e *Error) Retryable() bool {
	return e != nil && e.Kind == KindUnavailable
}

// Document lookups that fail authorization and lookups of missing documents
// share code and message so the two cannot be told apart.
const (
	documentNotFoundCode    = "NOT_FOUND"
	documentNotFoundMessage = "document not found"
)

func Unauthenticated(code, message string) *Error {
	return &Error{Kind: KindUnauthenticated, Code: code, Message: message, Status: http.StatusUnauthorized}
}

func Forbidden(code, message string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: message, Status: http.StatusForbidden}
}

// DocumentHidden is returned when a caller may not learn whether a document exists.
func DocumentHidden() *Error {
	return &Error{Kind: KindNotFoundOrForbidden, Code: documentNotFoundCode, Message: documentNotFoundMessage, Status: http.StatusNotFound}
}

// DocumentNotFound is returned for a document id with no row.
func DocumentNotFound() *Error {
	return &Error{Kind: KindNotFound, Code: documentNotFoundCode, Message: documentNotFoundMessage, Status: http.StatusNotFound}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message, Status: http.StatusNotFound}
}

// Validation builds a 400 error carrying per-field detail.
func Validation(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: message, Status: http.StatusBadRequest, Fields: fields}
}

// Field is shorthand for a validation error on a single field.
func Field(field, problem string) *Error {
	return Validation("validation failed", map[string]string{field: problem})
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message, Status: http.StatusConflict}
}

func RateLimited(message string) *Error {
	return &Error{Kind: KindRateLimited, Code: "TOO_MANY_REQUESTS", Message: message, Status: http.StatusTooManyRequests}
}

// Persistence wraps a database failure. Deadline overruns become Unavailable.
func Persistence(err error, message string) *Error {
	if isTimeout(err) {
		return unavailable(err)
	}
	return &Error{Kind: KindStorage, Code: "PERSISTENCE_ERROR", Message: message, Status: http.StatusInternalServerError, Err: err}
}

// Blob wraps a blob store failure. Deadline overruns become Unavailable.
func Blob(err error, message string) *Error {
	if isTimeout(err) {
		return unavailable(err)
	}
	return &Error{Kind: KindStorage, Code: "BLOB_STORE_ERROR", Message: message, Status: http.StatusBadGateway, Err: err}
}

// Internal wraps an unexpected failure.
func Internal(err error, message string) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL_ERROR", Message: message, Status: http.StatusInternalServerError, Err: err}
}

func unavailable(err error) *Error {
	return &Error{Kind: KindUnavailable, Code: "TIMEOUT", Message: "dependency timed out, retry later", Status: http.StatusServiceUnavailable, Err: err}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if isTimeout(err) {
		return unavailable(err)
	}
	return Internal(err, "internal server error")
}

// KindOf returns the Kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
