package graph

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is the engine-wide error taxonomy. Callers branch on kinds,
// not concrete types.
type ErrorKind string

const (
	KindInput              ErrorKind = "InputError"
	KindNotFound           ErrorKind = "NotFound"
	KindBoundExceeded      ErrorKind = "BoundExceeded"
	KindBackendUnavailable ErrorKind = "BackendUnavailable"
	KindCancelled          ErrorKind = "Cancelled"
	KindCacheCorrupted     ErrorKind = "CacheCorrupted"
	KindTimeout            ErrorKind = "Timeout"
)

// Error carries an ErrorKind across component boundaries. Use Errf or the
// kind-specific constructors rather than building one by hand.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the operation may succeed if repeated:
// backend outages, timeouts, and (once) cache corruption.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindBackendUnavailable, KindTimeout, KindCacheCorrupted:
		return true
	default:
		return false
	}
}

// Errf creates an Error of the given kind.
func Errf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error. Context cancellation and
// deadline errors keep their own kinds regardless of the requested one.
func Wrap(kind ErrorKind, err error, format string, args ...any) *Error {
	if errors.Is(err, context.Canceled) {
		kind = KindCancelled
	} else if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the ErrorKind from err, walking the wrap chain. Plain
// errors without a kind report "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
