package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker(t *testing.T) {
	base := time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)

	newBreaker := func(clock *time.Time) *Breaker {
		b := New("venue:test", 3, time.Minute)
		b.now = func() time.Time { return *clock }
		return b
	}

	t.Run("stays closed below threshold", func(t *testing.T) {
		clock := base
		b := newBreaker(&clock)
		b.RecordFailure()
		b.RecordFailure()
		assert.False(t, b.Open())
		assert.True(t, b.Allow())
	})

	t.Run("success resets the failure count", func(t *testing.T) {
		clock := base
		b := newBreaker(&clock)
		b.RecordFailure()
		b.RecordFailure()
		b.RecordSuccess()
		b.RecordFailure()
		b.RecordFailure()
		assert.False(t, b.Open())
	})

	t.Run("trips open at threshold and blocks calls", func(t *testing.T) {
		clock := base
		b := newBreaker(&clock)
		for i := 0; i < 3; i++ {
			b.RecordFailure()
		}
		assert.True(t, b.Open())
		assert.False(t, b.Allow())
	})

	t.Run("admits one probe after cooldown and recloses on success", func(t *testing.T) {
		clock := base
		b := newBreaker(&clock)
		for i := 0; i < 3; i++ {
			b.RecordFailure()
		}
		clock = base.Add(2 * time.Minute)
		assert.True(t, b.Allow())
		b.RecordSuccess()
		assert.False(t, b.Open())
		assert.True(t, b.Allow())
	})

	t.Run("failed probe reopens immediately", func(t *testing.T) {
		clock := base
		b := newBreaker(&clock)
		for i := 0; i < 3; i++ {
			b.RecordFailure()
		}
		clock = base.Add(2 * time.Minute)
		assert.True(t, b.Allow())
		b.RecordFailure()
		assert.True(t, b.Open())
		assert.False(t, b.Allow())
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "HALF-OPEN", StateHalfOpen.String())
}
