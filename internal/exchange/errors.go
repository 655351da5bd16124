package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// transientError marks a failure that is safe to retry: timeouts, connection
// resets, rate limiting, venue-side 5xx. Everything else is treated as
// permanent and surfaces immediately.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Transientf formats a retryable error.
func Transientf(format string, v ...any) error {
	return &transientError{err: fmt.Errorf(format, v...)}
}

// IsTransient reports whether err (anywhere in its chain) was marked
// retryable, or is a network timeout / context deadline.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
