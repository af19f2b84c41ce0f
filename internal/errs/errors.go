// Package errs provides the error type shared by the store drivers, the
// object archive and the web layer.
//
// Drivers wrap their native errors into *errs.Error so callers can branch on
// the kind without importing pgx or minio packages:
//
//	if errs.IsNotFound(err) {
//	    writeError(w, http.StatusNotFound, err)
//	}
package errs

import (
	"errors"
	"fmt"
)

// Kind categorises an error without exposing backend-specific codes.
type Kind int

const (
	KindUnknown          Kind = iota
	KindNotFound                 // no dataset, no row, no object
	KindConflict                 // uniqueness violated
	KindInvalidInput             // bad arguments from the caller
	KindTimeout                  // context deadline / cancellation
	KindConnectionFailed         // cannot reach the backend
	KindQueryFailed              // SQL or storage operation error
	KindPermissionDenied         // access denied by the backend
	KindInternal                 // anything the caller cannot act on
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidInput:
		return "invalid_input"
	case KindTimeout:
		return "timeout"
	case KindConnectionFailed:
		return "connection_failed"
	case KindQueryFailed:
		return "query_failed"
	case KindPermissionDenied:
		return "permission_denied"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the error type returned across package boundaries.
type Error struct {
	Kind    Kind
	Message string
	Cause   error // original error, preserved for logging and errors.Is
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an *Error with no cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error around cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err is a "not found" result.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsConflict reports whether err is a uniqueness violation.
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

// IsInvalidInput reports whether err was caused by bad caller input.
func IsInvalidInput(err error) bool {
	return KindOf(err) == KindInvalidInput
}

// IsTimeout reports whether err was caused by a deadline or cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

// IsConnectionFailed reports whether err is a connectivity failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == KindConnectionFailed
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == KindPermissionDenied
}
