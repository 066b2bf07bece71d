package services

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is against a returned *Error.
var (
	ErrValidation   = errors.New("validation error")
	ErrAuthenticity = errors.New("authenticity error")
	ErrNotFound     = errors.New("not found")
	ErrIntegrity    = errors.New("integrity error")
	ErrTransient    = errors.New("transient error")
	ErrConflict     = errors.New("conflict")
)

// Error is a service failure with a caller-safe message.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(message string, err error) *Error {
	return &Error{Kind: ErrNotFound, Message: message, Err: err}
}

func transientError(message string, err error) *Error {
	return &Error{Kind: ErrTransient, Message: message, Err: err}
}

func conflictError(message string) *Error {
	return &Error{Kind: ErrConflict, Message: message}
}

// PublicMessage returns text safe to show to a client. Internal failures
// collapse to a generic message.
func PublicMessage(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		switch svcErr.Kind {
		case ErrValidation, ErrConflict, ErrNotFound, ErrAuthenticity:
			return svcErr.Message
		}
	}
	return "internal server error"
}
