// Package errs defines the structured error type surfaced to shells.
// Every failure that crosses the public API boundary is an *Error with a
// kind, a machine-readable code, a user-facing message, and a short hint.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the shell.
type Kind string

const (
	// KindUserConfig covers invalid params: unknown column, empty
	// required field, contradictory pivot spec, and so on.
	KindUserConfig Kind = "user_configuration_error"

	// KindFormula covers parse errors, unresolved references, arity
	// mismatches, and circular dependencies.
	KindFormula Kind = "formula_error"

	// KindDataShape covers coercion failures, oversized inputs, and
	// incompatible merge keys.
	KindDataShape Kind = "data_shape_error"

	// KindIO covers file-not-found, unreadable files, unsupported Excel
	// sheets, and warehouse auth failures.
	KindIO Kind = "io_error"

	// KindInvariant marks bugs: registry desync, state invariant
	// violations. Fatal for the pipeline; never auto-recovered.
	KindInvariant Kind = "internal_invariant"
)

// Error is the single structured error type of the pipeline.
type Error struct {
	Kind    Kind
	Code    string // stable machine-readable code, e.g. "column_not_found"
	Message string // user-facing message
	Hint    string // optional short hint for the UI
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithHint attaches a short UI hint and returns the error.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// New builds an error of the given kind.
func New(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// UserConfig builds a user-configuration error.
func UserConfig(code, format string, args ...interface{}) *Error {
	return New(KindUserConfig, code, format, args...)
}

// Formula builds a formula error.
func Formula(code, format string, args ...interface{}) *Error {
	return New(KindFormula, code, format, args...)
}

// DataShape builds a data-shape error.
func DataShape(code, format string, args ...interface{}) *Error {
	return New(KindDataShape, code, format, args...)
}

// IO builds an IO error.
func IO(code, format string, args ...interface{}) *Error {
	return New(KindIO, code, format, args...)
}

// Invariant builds an internal-invariant error. These indicate bugs and
// the shell is expected to surface a "please report this" message.
func Invariant(code, format string, args ...interface{}) *Error {
	return New(KindInvariant, code, format, args...)
}

// KindOf reports the kind of err, or "" if err is not a structured error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// AsError extracts the structured error from err, wrapping foreign errors
// as internal invariants so shells always receive a structured payload.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Invariant("unexpected_error", "%v", err)
}
