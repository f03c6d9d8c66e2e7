// Package apperr defines the error kinds surfaced by the portal core.
// Handlers translate a Kind into an HTTP status; nothing here is fatal.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	Validation
	Unauthorized
	NotFound
	Locked
	InvalidCredential
	Conflict
	Integrity
	StorageFailure
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Unauthorized:
		return "unauthorized"
	case NotFound:
		return "not_found"
	case Locked:
		return "locked"
	case InvalidCredential:
		return "invalid_credential"
	case Conflict:
		return "conflict"
	case Integrity:
		return "integrity"
	case StorageFailure:
		return "storage_failure"
	default:
		return "unknown"
	}
}

// Error is a classified failure. RemainingMinutes is only set for Locked.
type Error struct {
	Kind             Kind
	Msg              string
	RemainingMinutes int
	Err              error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// LockedFor reports an active lockout with the minutes left before it expires.
func LockedFor(minutes int) *Error {
	return &Error{
		Kind:             Locked,
		Msg:              fmt.Sprintf("account is locked, try again in %d minutes", minutes),
		RemainingMinutes: minutes,
	}
}

// Storage passes classified errors through unchanged and marks anything
// else as a storage failure.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Wrap(StorageFailure, "storage failure", err)
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// RemainingMinutes returns the lockout detail of a Locked error, or 0.
func RemainingMinutes(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Kind == Locked {
		return e.RemainingMinutes
	}
	return 0
}
