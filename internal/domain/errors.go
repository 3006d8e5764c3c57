package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and the HTTP layer. Kinds are part of
// the external contract: every request returns either a well-formed result or
// exactly one of these.
type Kind string

const (
	KindValidation           Kind = "validation"
	KindInsufficientData     Kind = "insufficient_data"
	KindInsufficientCoverage Kind = "insufficient_coverage"
	KindInsufficientTraining Kind = "insufficient_training"
	KindInvalidTransition    Kind = "invalid_transition"
	KindNotFound             Kind = "not_found"
	KindStoreUnavailable     Kind = "store_unavailable"
	KindInternal             Kind = "internal"
)

// Error is a kinded error. Op names the failing operation; Err is the wrapped
// cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a kinded error.
func E(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds a kinded error around a cause.
func Wrap(kind Kind, op string, err error, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf extracts the kind from err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
