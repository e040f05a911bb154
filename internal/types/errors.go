// internal/types/errors.go
package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures at component boundaries so callers can apply
// a uniform policy (HTTP status, fallback message) without inspecting raw
// error text.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindNotFound
	KindUnsupportedFormat
	KindStorage
	KindModel
)

// String returns a short stable name for logging.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnsupportedFormat:
		return "unsupported_format"
	case KindStorage:
		return "storage"
	case KindModel:
		return "model"
	default:
		return "unknown"
	}
}

// Error is a kinded error. Msg is safe to show operators; Err carries the
// underlying cause for logs and is never serialized to clients.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a kinded error without an underlying cause.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// WrapError creates a kinded error wrapping an underlying cause.
func WrapError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the ErrorKind from err, or KindUnknown for untyped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
