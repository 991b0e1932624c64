package commands

import (
	"errors"
	"fmt"
)

// Kind classifies a command failure for the UI.
type Kind string

const (
	KindStore           Kind = "store"
	KindWindow          Kind = "window"
	KindHostInfo        Kind = "host_info"
	KindValidation      Kind = "validation"
	KindInvalidArgument Kind = "invalid_argument"
	KindDatabase        Kind = "database"
	KindInternal        Kind = "internal"
)

// Error is the failure of one command invocation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failed", e.Op, e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal.
func KindOf(err error) Kind {
	var cmdErr *Error
	if errors.As(err, &cmdErr) {
		return cmdErr.Kind
	}
	return KindInternal
}

func wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
