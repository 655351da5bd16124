package notify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []Event
	err    error
}

func (r *recordingSink) Publish(event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestEventSummary(t *testing.T) {
	t.Run("fields render sorted by key", func(t *testing.T) {
		e := Event{
			Type:      EventTradeOpened,
			AccountID: "main",
			Symbol:    "BTCUSDT",
			Fields: map[string]any{
				"quantity": 0.5,
				"entry":    42000.0,
				"side":     "BUY",
			},
		}
		assert.Equal(t,
			"[trade_opened] account=main symbol=BTCUSDT entry=42000 quantity=0.5 side=BUY",
			e.Summary())
	})

	t.Run("symbol and fields are optional", func(t *testing.T) {
		e := Event{Type: EventBreakerActivated, AccountID: "main"}
		assert.Equal(t, "[circuit_breaker_activated] account=main", e.Summary())
	})
}

func TestMultiPublish(t *testing.T) {
	t.Run("fans out to every sink", func(t *testing.T) {
		a := &recordingSink{}
		b := &recordingSink{}
		m := Multi{a, b}
		require.NoError(t, m.Publish(Event{Type: EventTradeClosed, AccountID: "main"}))
		assert.Len(t, a.events, 1)
		assert.Len(t, b.events, 1)
	})

	t.Run("keeps delivering after a sink fails and returns the first error", func(t *testing.T) {
		errA := errors.New("sink a down")
		a := &recordingSink{err: errA}
		b := &recordingSink{err: errors.New("sink b down")}
		m := Multi{a, nil, b}
		err := m.Publish(Event{Type: EventManualIntervention, AccountID: "main"})
		assert.ErrorIs(t, err, errA)
		assert.Len(t, b.events, 1)
	})
}
