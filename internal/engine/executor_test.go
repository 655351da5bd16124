package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitrader/internal/exchange"
	"unitrader/internal/notify"
	"unitrader/internal/pkg/retry"
	"unitrader/internal/store"
	"unitrader/internal/store/storetest"
)

type captureNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captureNotifier) Publish(event notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureNotifier) byType(t notify.EventType) []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []notify.Event
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// flakyExchange fails protection placement a scripted number of times.
type flakyExchange struct {
	*exchange.Paper
	mu          sync.Mutex
	stopFails   int
	targetFails int
	closeErr    error
	stopCalls   int
	// when set, a failed stop submit still lands the order at the venue
	stopLandsDespiteError bool
}

func (f *flakyExchange) SetStopLoss(ctx context.Context, symbol string, side exchange.Side, quantity, stopPrice float64) (string, error) {
	f.mu.Lock()
	fail := f.stopFails > 0
	if fail {
		f.stopFails--
	}
	f.stopCalls++
	land := f.stopLandsDespiteError
	f.mu.Unlock()
	if fail {
		if land {
			_, _ = f.Paper.SetStopLoss(ctx, symbol, side, quantity, stopPrice)
		}
		return "", exchange.Transient(errors.New("request timed out"))
	}
	return f.Paper.SetStopLoss(ctx, symbol, side, quantity, stopPrice)
}

func (f *flakyExchange) SetTakeProfit(ctx context.Context, symbol string, side exchange.Side, quantity, targetPrice float64) (string, error) {
	f.mu.Lock()
	fail := f.targetFails > 0
	if fail {
		f.targetFails--
	}
	f.mu.Unlock()
	if fail {
		return "", exchange.Transient(errors.New("request timed out"))
	}
	return f.Paper.SetTakeProfit(ctx, symbol, side, quantity, targetPrice)
}

func (f *flakyExchange) ClosePosition(ctx context.Context, symbol string, side exchange.Side, quantity float64) (float64, error) {
	if f.closeErr != nil {
		return 0, f.closeErr
	}
	return f.Paper.ClosePosition(ctx, symbol, side, quantity)
}

func testPlan(t *testing.T) *Plan {
	t.Helper()
	plan, err := BuildPlan(SizingConfig{}, "BTCUSDT", exchange.SideBuy, 90, 10000, 100, 1, testInfo)
	require.NoError(t, err)
	return plan
}

func fastExecutorPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func newFlaky() *flakyExchange {
	paper := exchange.NewPaper(10000)
	paper.SetPrice("BTCUSDT", 100)
	paper.SetSymbolInfo(testInfo)
	return &flakyExchange{Paper: paper}
}

func TestExecutorExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path records a protected position", func(t *testing.T) {
		ex := newFlaky()
		st := storetest.New()
		sink := &captureNotifier{}
		exec := NewExecutor(ex, st, sink).WithPolicy(fastExecutorPolicy())

		pos, err := exec.Execute(ctx, "acct-1", testPlan(t), "uptrend", "strong setup")
		require.NoError(t, err)
		require.NotNil(t, pos)
		assert.Equal(t, store.PositionOpen, pos.Status)
		assert.NotEmpty(t, pos.EntryOrderID)
		assert.NotEmpty(t, pos.StopOrderID)
		assert.NotEmpty(t, pos.TargetOrderID)
		assert.Equal(t, 98.0, pos.StopLoss)
		assert.Equal(t, 106.0, pos.TakeProfit)
		assert.GreaterOrEqual(t, pos.ExecutionMS, 0.0)

		open, err := st.OpenPositions(ctx, "acct-1")
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Len(t, sink.byType(notify.EventTradeOpened), 1)
	})

	t.Run("transient stop failure is retried", func(t *testing.T) {
		ex := newFlaky()
		ex.stopFails = 1
		st := storetest.New()
		exec := NewExecutor(ex, st, &captureNotifier{}).WithPolicy(fastExecutorPolicy())

		pos, err := exec.Execute(ctx, "acct-1", testPlan(t), "uptrend", "")
		require.NoError(t, err)
		assert.NotEmpty(t, pos.StopOrderID)
		assert.Equal(t, 2, ex.stopCalls)
	})

	t.Run("landed-but-errored stop is not resubmitted", func(t *testing.T) {
		ex := newFlaky()
		ex.stopFails = 1
		ex.stopLandsDespiteError = true
		st := storetest.New()
		exec := NewExecutor(ex, st, &captureNotifier{}).WithPolicy(fastExecutorPolicy())

		pos, err := exec.Execute(ctx, "acct-1", testPlan(t), "uptrend", "")
		require.NoError(t, err)
		require.NotEmpty(t, pos.StopOrderID)
		// Only the failed submit hit the venue; the retry adopted its order.
		assert.Equal(t, 1, ex.stopCalls)
		orders, err := ex.GetOpenOrders(ctx, "BTCUSDT")
		require.NoError(t, err)
		stops := 0
		for _, o := range orders {
			if o.Type == "STOP_LOSS" {
				stops++
			}
		}
		assert.Equal(t, 1, stops)
	})

	t.Run("exhausted stop retries trigger a compensating close", func(t *testing.T) {
		ex := newFlaky()
		ex.stopFails = 10
		st := storetest.New()
		sink := &captureNotifier{}
		exec := NewExecutor(ex, st, sink).WithPolicy(fastExecutorPolicy())

		pos, err := exec.Execute(ctx, "acct-1", testPlan(t), "uptrend", "")
		require.Error(t, err)
		assert.Nil(t, pos)

		closed, err := st.ClosedSince(ctx, "acct-1", time.Time{})
		require.NoError(t, err)
		require.Len(t, closed, 1)
		assert.Equal(t, store.CloseReasonManual, closed[0].CloseReason)
		assert.False(t, closed[0].NeedsIntervention)
		assert.Len(t, sink.byType(notify.EventTradeClosed), 1)
	})

	t.Run("failed compensation flags manual intervention", func(t *testing.T) {
		ex := newFlaky()
		ex.stopFails = 10
		ex.closeErr = errors.New("venue unreachable")
		st := storetest.New()
		sink := &captureNotifier{}
		exec := NewExecutor(ex, st, sink).WithPolicy(fastExecutorPolicy())

		pos, err := exec.Execute(ctx, "acct-1", testPlan(t), "uptrend", "")
		require.Error(t, err)
		assert.Nil(t, pos)

		open, err := st.OpenPositions(ctx, "acct-1")
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.True(t, open[0].NeedsIntervention)

		alerts := sink.byType(notify.EventManualIntervention)
		require.Len(t, alerts, 1)
		assert.Equal(t, notify.PriorityHigh, alerts[0].Priority)
	})

	t.Run("take-profit failure cancels the stop before compensating", func(t *testing.T) {
		ex := newFlaky()
		ex.targetFails = 10
		st := storetest.New()
		exec := NewExecutor(ex, st, &captureNotifier{}).WithPolicy(fastExecutorPolicy())

		_, err := exec.Execute(ctx, "acct-1", testPlan(t), "uptrend", "")
		require.Error(t, err)

		orders, err := ex.GetOpenOrders(ctx, "BTCUSDT")
		require.NoError(t, err)
		assert.Empty(t, orders)
	})
}
