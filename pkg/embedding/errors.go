package embedding

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes embedding failures so callers can decide whether
// to degrade (save path) or fail fast (search path).
type ErrorKind string

const (
	// KindTooLong means the input exceeded the configured character limit.
	// Never retried.
	KindTooLong ErrorKind = "too_long"

	// KindProviderUnavailable means the provider rejected or could not
	// serve the call after retries.
	KindProviderUnavailable ErrorKind = "provider_unavailable"

	// KindTimeout means the call exceeded its deadline.
	KindTimeout ErrorKind = "timeout"
)

// Error is a typed embedding failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("embedding error: %s", e.Kind)
	}
	return fmt.Sprintf("embedding error (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with an embedding error kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the ErrorKind from err, if it carries one.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsRetryable reports whether err is worth retrying against the provider.
func IsRetryable(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	return kind == KindProviderUnavailable || kind == KindTimeout
}
