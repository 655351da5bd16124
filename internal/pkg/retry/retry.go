// Package retry implements a bounded retry policy with exponential backoff.
// It is applied explicitly at call sites instead of wrapping clients, so the
// retryable-error predicate stays visible where the call is made.
package retry

import (
	"context"
	"time"
)

// Policy describes how many attempts to make and how long to wait between
// them. Retryable decides whether an error is worth another attempt; a nil
// predicate retries everything.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retryable   func(error) bool
}

// DefaultPolicy mirrors the venue client defaults: three attempts with
// exponential backoff starting at one second.
func DefaultPolicy(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Retryable:   retryable,
	}
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns the backoff before the given attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	if d <= 0 {
		d = time.Second
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, the attempt budget is spent, the error is
// classified permanent, or ctx is cancelled. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.attempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == p.attempts() {
			break
		}
		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
