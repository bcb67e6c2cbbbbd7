package dispatch

import (
	"errors"
	"fmt"
	"reflect"
)

// Sentinel errors for the failure taxonomy. Every error produced by the
// runtime wraps exactly one of these, so callers test with errors.Is.
var (
	// ErrNoSuchMember means structural resolution found nothing matching a
	// signature. It is the expected control-flow signal for the *Unknown
	// invocation kinds.
	ErrNoSuchMember = errors.New("no such member")

	// ErrAmbiguousMember means more than one equally good match was found
	// where exactly one was required.
	ErrAmbiguousMember = errors.New("ambiguous member")

	// ErrBuildFailure means a proxy type could not be synthesized.
	ErrBuildFailure = errors.New("proxy build failure")

	// ErrInvariantViolation reports programmer error: weaving after publish,
	// re-initializing a proxy, mixing signature subkinds.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrSerializationRejected means a dynamic container holds a value that
	// cannot be serialized.
	ErrSerializationRejected = errors.New("serialization rejected")
)

// Error is the structured form of a dispatch failure.
type Error struct {
	Code   error        // one of the sentinel errors above
	Kind   Kind         // invocation kind being performed
	Member string       // member name, empty for direct invocation
	Type   reflect.Type // receiver or context type, may be nil
	Err    error        // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Code.Error()
	if e.Member != "" {
		msg += fmt.Sprintf(" %q", e.Member)
	}
	if e.Type != nil {
		msg += fmt.Sprintf(" on %s", e.Type)
	}
	if e.Kind != 0 {
		msg += fmt.Sprintf(" (%s)", e.Kind)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is this error's code.
func (e *Error) Is(target error) bool {
	return target == e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

func noSuchMember(kind Kind, name string, t reflect.Type, cause error) error {
	return &Error{Code: ErrNoSuchMember, Kind: kind, Member: name, Type: t, Err: cause}
}

func ambiguous(kind Kind, name string, t reflect.Type, cause error) error {
	return &Error{Code: ErrAmbiguousMember, Kind: kind, Member: name, Type: t, Err: cause}
}

// NoSuchMember builds an ErrNoSuchMember error for use by Object
// implementations outside this package.
func NoSuchMember(name string, t reflect.Type) error {
	return &Error{Code: ErrNoSuchMember, Member: name, Type: t}
}

// Violation builds an ErrInvariantViolation error with a formatted cause.
func Violation(format string, args ...any) error {
	return &Error{Code: ErrInvariantViolation, Err: fmt.Errorf(format, args...)}
}

// IsNoSuchMember reports whether err is, or wraps, ErrNoSuchMember.
func IsNoSuchMember(err error) bool {
	return errors.Is(err, ErrNoSuchMember)
}
