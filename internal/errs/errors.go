// Package errs provides the unified error type used across the structure
// reflection layer.
//
// Database adapters, cache backends and the object store wrap their native
// errors into *errs.Error before returning them. Callers use the Is*
// predicates to handle errors without importing driver-specific packages.
//
// Usage:
//
//	// In an adapter, wrap native errors:
//	return errs.Wrap(errs.ErrKindTimeout, "list tables", pgErr)
//
//	// In a caller, check the error kind:
//	if errs.IsTableNotFound(err) {
//	    http.Error(w, err.Error(), http.StatusNotFound)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows, no object, no cache entry
	ErrKindConnectionFailed         // cannot reach the backend
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // SQL or storage operation error
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindPermissionDenied         // access denied / auth failure
	ErrKindTableNotFound            // table or view name could not be resolved
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindTableNotFound:
		return "table_not_found"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Table   string // unresolved table name, set for ErrKindTableNotFound
	Cause   error  // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// TableNotFound reports a table or view name that is unknown to the
// database structure. table is kept exactly as the caller passed it.
func TableNotFound(table string) *Error {
	return &Error{
		Kind:    ErrKindTableNotFound,
		Message: fmt.Sprintf("table %q does not exist", table),
		Table:   table,
	}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result
// (no rows, missing object, unknown table, …).
func IsNotFound(err error) bool {
	k := kindOf(err)
	return k == ErrKindNotFound || k == ErrKindTableNotFound
}

// IsTableNotFound reports whether err was raised by table name resolution.
func IsTableNotFound(err error) bool {
	return kindOf(err) == ErrKindTableNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return kindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return kindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a backend operation failure.
func IsQueryFailed(err error) bool {
	return kindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return kindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return kindOf(err) == ErrKindPermissionDenied
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	return kindOf(err)
}

func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
