// Package apperr defines the error values shared across railmiles layers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalid       = errors.New("invalid")
)

// UserError carries a message that may be shown to the end user as-is.
// Kind, when set, is one of the sentinels above and is matched by errors.Is.
type UserError struct {
	Msg  string
	Kind error
}

func (e *UserError) Error() string { return e.Msg }

func (e *UserError) Unwrap() error { return e.Kind }

// User returns a new UserError with a formatted message.
func User(format string, args ...any) error {
	return &UserError{Msg: fmt.Sprintf(format, args...)}
}

// Invalid returns a UserError that also matches ErrInvalid.
func Invalid(format string, args ...any) error {
	return &UserError{Msg: fmt.Sprintf(format, args...), Kind: ErrInvalid}
}

// AsUser reports whether err's chain holds a UserError and returns it.
func AsUser(err error) (*UserError, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// Wrap annotates err with msg. Errors that already carry a UserError are
// returned unchanged so the user-facing message survives intact.
func Wrap(err error, msg string, args ...any) error {
	if err == nil {
		return nil
	}
	if _, ok := AsUser(err); ok {
		return err
	}
	return fmt.Errorf(msg+": %w", append(args, err)...)
}
