package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every error a service returns to a handler is an *Error whose
// kind matches exactly one of these with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrCapacity     = errors.New("capacity exhausted")
	ErrTransient    = errors.New("transient failure")
	ErrUnauthorized = errors.New("unauthorized")
)

// Error carries a stable, user-facing message plus the kind used for status
// mapping. Cause, when set, is kept for logs and errors.Is/As.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind error, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}
