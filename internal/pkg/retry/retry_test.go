package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo(t *testing.T) {
	transient := errors.New("transient")
	permanent := errors.New("permanent")
	policy := Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, transient) },
	}

	t.Run("succeeds without retry", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), func(context.Context) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries transient errors until success", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), func(context.Context) error {
			calls++
			if calls < 3 {
				return transient
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), func(context.Context) error {
			calls++
			return transient
		})
		assert.ErrorIs(t, err, transient)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), func(context.Context) error {
			calls++
			return permanent
		})
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := policy.Do(ctx, func(context.Context) error {
			calls++
			cancel()
			return transient
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestDelay(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	// Capped at MaxDelay from the fourth attempt onwards.
	assert.Equal(t, 5*time.Second, p.Delay(4))
	assert.Equal(t, 5*time.Second, p.Delay(10))
}
