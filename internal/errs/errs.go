// Package errs classifies dashboard failures so callers can decide between
// absorbing, reporting, or terminating the session.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the coarse category of a failure.
type Kind uint8

// Supported failure kinds.
const (
	KindUnknown Kind = iota
	// KindAuthentication marks a rejected or missing credential (HTTP 401).
	KindAuthentication
	// KindTransientFetch marks a failed read (list or detail) that the next cycle retries.
	KindTransientFetch
	// KindMutation marks a failed add/start/stop/bulk call.
	KindMutation
	// KindValidation marks input rejected locally before any network call.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindTransientFetch:
		return "transient_fetch"
	case KindMutation:
		return "mutation"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// ErrUnauthorized is the cause carried by every authentication failure.
var ErrUnauthorized = errors.New("authentication required")

// Error carries a Kind, the failing operation, and the upstream status code when one exists.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := e.Op
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an *Error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation builds a validation error with a plain message.
func Validation(op, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: errors.New(msg)}
}

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusCode returns the upstream HTTP status recorded in err's chain, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}
