// Package mittn contains the shared domain error type for the
// httpfuzzer core. Components in sibling packages construct an *Error
// at the system boundary (subprocess exit, socket, database handle)
// and intermediate layers add ErrorKind context rather than wrap
// again, using fmt.Errorf("%w", ...) when they need to add detail.
package mittn

import (
	"errors"
	"strings"
)

// Error is the httpfuzzer error domain type.
//
// Errors coming from httpfuzzer components should be inspectable as
// (errors.As) an *Error at some point in the chain.
type Error struct {
	Inner   error
	Kind    ErrorKind
	Message string
	Op      string
}

var (
	_ error                       = (*Error)(nil)
	_ interface{ Is(error) bool } = (*Error)(nil)
	_ interface{ Unwrap() error } = (*Error)(nil)
)

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	b.WriteString("[")
	switch e.Kind {
	case ErrFatal, ErrInternal, ErrInvalid, ErrObservational, ErrTransient:
		b.WriteString(string(e.Kind))
	default:
		b.WriteString("???")
	}
	b.WriteString("]: ")
	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Message != "" && e.Inner != nil {
		b.WriteString(": ")
	}
	if e.Op == "" && e.Message == "" {
		b.Reset()
	}
	if e.Inner != nil {
		b.WriteString(e.Inner.Error())
	}
	return b.String()
}

// Is enables errors.Is. Callers should compare against a declared
// ErrorKind, not a specific *Error value.
func (e *Error) Is(kind error) bool {
	return errors.Is(e.Kind, kind)
}

// Unwrap enables errors.Unwrap.
func (e *Error) Unwrap() error { return e.Inner }

// ErrorKind classifies an Error along three axes: fatal to the run,
// observational (data, not error), and everything else.
type ErrorKind string

// Error implements error so an ErrorKind can be used directly as a
// sentinel with errors.Is.
func (k ErrorKind) Error() string { return string(k) }

// Defined error kinds.
var (
	// ErrFatal marks conditions that must abort the scenario:
	// misconfiguration, a missing or failing mutator binary, an
	// unreachable archive when a finding must be recorded, or a
	// heartbeat failure outside the auth-shaped status set.
	ErrFatal = ErrorKind("fatal")
	// ErrInternal is a non-specific internal error; used when no
	// more specific kind applies.
	ErrInternal = ErrorKind("internal")
	// ErrInvalid marks an invalid request or configuration value.
	ErrInvalid = ErrorKind("invalid")
	// ErrObservational marks conditions that are data, not failure:
	// probe timeouts and protocol errors are the point of the tool
	// and are never propagated as Go errors from the probe itself,
	// but call sites that need to tag a record with this kind (e.g.
	// a classifier audit log) use it for that purpose.
	ErrObservational = ErrorKind("observational")
	// ErrTransient marks conditions that may succeed on retry.
	ErrTransient = ErrorKind("transient")
)
