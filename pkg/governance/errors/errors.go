// Package governerr defines the typed error kinds returned by the governance
// engine. Callers classify failures with KindOf or Is; messages are never
// string-matched.
package governerr

import (
	"errors"
	"fmt"
)

// Kind classifies a governance failure.
type Kind int

const (
	// Internal is an unexpected failure (I/O, encoding) that is not a policy decision.
	Internal Kind = iota

	// NotFound means a referenced draft, backup, profile or record does not exist.
	NotFound

	// Invalid means malformed input, an unsafe name, a wrong field type, an
	// out-of-range value or a corrupt durable record.
	Invalid

	// Blocked means a policy gate refused the operation.
	Blocked
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Invalid:
		return "invalid"
	case Blocked:
		return "blocked"
	default:
		return "internal"
	}
}

// Error is a governance error carrying its kind, the failing operation and a
// human-readable message.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Op is the operation that failed (e.g. "publish", "draft.read").
	Op string

	// Message describes the failure for an operator.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Kind == Blocked {
		msg = "blocked: " + msg
	}
	if e.Op != "" {
		msg = e.Op + " " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error of the given kind.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf creates a NotFound error.
func NotFoundf(op, format string, args ...any) *Error {
	return New(NotFound, op, format, args...)
}

// Invalidf creates an Invalid error.
func Invalidf(op, format string, args ...any) *Error {
	return New(Invalid, op, format, args...)
}

// Blockedf creates a Blocked error.
func Blockedf(op, format string, args ...any) *Error {
	return New(Blocked, op, format, args...)
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, op string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
