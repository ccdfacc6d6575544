// Package cmn is DART-Go's common package: the dart_ret_t error
// taxonomy (spec.md §7) and the global config owner (spec.md §1.3 of
// SPEC_FULL.md), grounded on aistore's cmn package (cmn.NewErrAborted,
// cmn.NewErrXactUsePrev, cmn.GCO.Get() as used from xact/xs/tcb.go and
// reb/resilver.go).
package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is the flat return-code enum of spec.md §6: "return type is a
// small enum {OK, PENDING, ERR_INVAL, ERR_NOTFOUND, ERR_NOTINIT,
// ERR_OTHER} everywhere but abort (noreturn) and initialized (boolean)."
type Code int

const (
	OK Code = iota
	Pending
	ErrInval
	ErrNotFound
	ErrNotInit
	ErrOther
)

func (c Code) String() string {
	switch c {
	case OK:
		return "DART_OK"
	case Pending:
		return "DART_PENDING"
	case ErrInval:
		return "DART_ERR_INVAL"
	case ErrNotFound:
		return "DART_ERR_NOTFOUND"
	case ErrNotInit:
		return "DART_ERR_NOTINIT"
	case ErrOther:
		return "DART_ERR_OTHER"
	default:
		return "DART_ERR_UNKNOWN"
	}
}

// Error couples a Code with a causal chain captured via pkg/errors, so
// that ErrOther conditions (transport failures, exhausted tables) retain
// a stack trace for DEBUG/TRACE logging per spec.md §7.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(code Code, op string, cause error) *Error {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &Error{Code: code, Op: op, Err: cause}
}

func NewErrInval(op string, cause error) *Error    { return newErr(ErrInval, op, cause) }
func NewErrNotFound(op string, cause error) *Error { return newErr(ErrNotFound, op, cause) }
func NewErrNotInit(op string) *Error               { return newErr(ErrNotInit, op, nil) }
func NewErrOther(op string, cause error) *Error    { return newErr(ErrOther, op, cause) }

// CodeOf extracts the taxonomy Code from an arbitrary error, defaulting
// to ErrOther for unrecognized errors (spec.md §7: "Other (ERR_OTHER):
// transport failure, ...").
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrOther
}
