// Package errors implements the docgraph error taxonomy.
//
// Every failure surfaced by the translation layer carries a Kind that tells the
// caller how to react: configuration and lifecycle failures are fatal, validation
// failures are rejected before any I/O, not-found failures depend on the element
// kind, and backend failures are propagated without retry.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind int

const (
	// KindConfiguration indicates an unusable configuration: unknown client mode,
	// unknown or unconstructable routing strategy, invalid label for a scheme.
	KindConfiguration Kind = iota

	// KindValidation indicates a malformed property key or value.
	// Raised before any backend call.
	KindValidation

	// KindNotFound indicates a requested element does not exist.
	KindNotFound

	// KindBackend indicates a failed backend request: create conflict,
	// missing document on update, malformed filter, storage failure.
	KindBackend

	// KindMaterialization indicates a stored document could not be turned
	// into a graph element.
	KindMaterialization

	// KindLifecycle indicates use of a closed resource.
	KindLifecycle
)

var kindNames = map[Kind]string{
	KindConfiguration:   "configuration",
	KindValidation:      "validation",
	KindNotFound:        "not_found",
	KindBackend:         "backend",
	KindMaterialization: "materialization",
	KindLifecycle:       "lifecycle",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Sentinels for errors.Is checks by kind.
var (
	ErrConfiguration   = &Error{Kind: KindConfiguration}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrBackend         = &Error{Kind: KindBackend}
	ErrMaterialization = &Error{Kind: KindMaterialization}
	ErrLifecycle       = &Error{Kind: KindLifecycle}
)

// Error wraps an underlying error with its classification and the operation
// that produced it.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		if msg != "" {
			msg = e.Op + ": " + msg
		} else {
			msg = e.Op
		}
	}
	if e.Err != nil {
		if msg == "" {
			return fmt.Sprintf("[%s] %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("[%s] %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Kind == te.Kind
	}
	return false
}

// New creates a classified error without an underlying cause.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. Returns nil if err is nil. An err that is already
// classified keeps its kind and gains the operation name only if it had none.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op == "" {
			existing.Op = op
		}
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Configuration creates a KindConfiguration error.
func Configuration(op, format string, args ...any) *Error {
	return New(KindConfiguration, op, format, args...)
}

// Validation creates a KindValidation error.
func Validation(op, format string, args ...any) *Error {
	return New(KindValidation, op, format, args...)
}

// NotFound creates a KindNotFound error for the given element kind and id.
func NotFound(op, element, id string) *Error {
	return New(KindNotFound, op, "%s with id %q does not exist", element, id)
}

// Backend wraps a backend failure.
func Backend(op string, err error) error {
	return Wrap(KindBackend, op, err)
}

// Materialization creates a KindMaterialization error.
func Materialization(op, format string, args ...any) *Error {
	return New(KindMaterialization, op, format, args...)
}

// KindOf returns the kind of err, and false if err is not classified.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
