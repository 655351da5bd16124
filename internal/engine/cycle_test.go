package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitrader/internal/advisory"
	"unitrader/internal/exchange"
	"unitrader/internal/indicator"
	"unitrader/internal/risk"
	"unitrader/internal/store"
	"unitrader/internal/store/storetest"
)

type stubAdvisor struct {
	mu    sync.Mutex
	rec   advisory.Recommendation
	delay time.Duration
	calls int
}

func (s *stubAdvisor) GetRecommendation(context.Context, *indicator.Bundle, advisory.AccountContext) advisory.Recommendation {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.rec
}

func (s *stubAdvisor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func risingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + 0.2*float64(i)
	}
	return closes
}

type cycleFixture struct {
	cycle   *Cycle
	ex      *exchange.Paper
	store   *storetest.Store
	advisor *stubAdvisor
	locks   *LockRegistry
	now     time.Time
}

func newCycleFixture(t *testing.T, rec advisory.Recommendation) *cycleFixture {
	t.Helper()
	ex := exchange.NewPaper(10000)
	ex.SeedHistory("BTCUSDT", risingCloses(250))
	ex.SetSymbolInfo(testInfo)

	st := storetest.New()
	advisor := &stubAdvisor{rec: rec}
	locks := NewLockRegistry()
	exec := NewExecutor(ex, st, &captureNotifier{}).WithPolicy(fastExecutorPolicy())
	limits := func() risk.Limits { return risk.Limits{}.WithDefaults() }

	c := NewCycle(CycleConfig{AccountID: "acct-1", Symbol: "BTCUSDT"}, ex, st, advisor, nil, exec, locks, limits)
	// Wednesday mid-afternoon, so daily/weekly windows are distinct.
	now := time.Date(2025, 6, 18, 14, 30, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return &cycleFixture{cycle: c, ex: ex, store: st, advisor: advisor, locks: locks, now: now}
}

func TestCycleRun(t *testing.T) {
	ctx := context.Background()
	buy90 := advisory.Recommendation{Action: advisory.ActionBuy, Confidence: 90, Rationale: "uptrend"}

	t.Run("buy recommendation opens a protected position", func(t *testing.T) {
		f := newCycleFixture(t, buy90)
		require.NoError(t, f.cycle.Run(ctx))

		open, err := f.store.OpenPositions(ctx, "acct-1")
		require.NoError(t, err)
		require.Len(t, open, 1)
		pos := open[0]
		// Last close is 149.8; 2% tier of 10000 is a 200 notional.
		assert.Equal(t, exchange.SideBuy, pos.Side)
		assert.InDelta(t, 149.8, pos.EntryPrice, 1e-9)
		assert.InDelta(t, 1.335, pos.Quantity, 1e-9)
		assert.InDelta(t, 146.80, pos.StopLoss, 0.005)
		assert.InDelta(t, 158.79, pos.TakeProfit, 0.005)
		assert.Equal(t, "uptrend", pos.Trend)
		assert.NotEmpty(t, pos.StopOrderID)
		assert.NotEmpty(t, pos.TargetOrderID)
	})

	t.Run("wait recommendation trades nothing", func(t *testing.T) {
		f := newCycleFixture(t, advisory.Wait("no setup"))
		require.NoError(t, f.cycle.Run(ctx))

		open, err := f.store.OpenPositions(ctx, "acct-1")
		require.NoError(t, err)
		assert.Empty(t, open)
		assert.Equal(t, 1, f.advisor.callCount())
	})

	t.Run("low confidence places no trade", func(t *testing.T) {
		f := newCycleFixture(t, advisory.Recommendation{Action: advisory.ActionBuy, Confidence: 45})
		require.NoError(t, f.cycle.Run(ctx))

		open, err := f.store.OpenPositions(ctx, "acct-1")
		require.NoError(t, err)
		assert.Empty(t, open)
	})

	t.Run("active breaker skips the pass entirely", func(t *testing.T) {
		f := newCycleFixture(t, buy90)
		state := risk.State{}.Trip(risk.FlagHourlyLoss, f.now, time.Hour)
		require.NoError(t, f.store.SaveBreakerState(ctx, state.Record("acct-1", f.now)))

		require.NoError(t, f.cycle.Run(ctx))
		assert.Equal(t, 0, f.advisor.callCount())
	})

	t.Run("spent daily budget rejects the trade", func(t *testing.T) {
		f := newCycleFixture(t, buy90)
		f.store.Seed(store.Position{
			ID:        "prior-loss",
			AccountID: "acct-1",
			Symbol:    "BTCUSDT",
			Status:    store.PositionClosed,
			PnL:       -600, // 6% of balance, over the 5% daily cap
			ClosedAt:  f.now.Add(-2 * time.Hour),
		})

		require.NoError(t, f.cycle.Run(ctx))
		open, err := f.store.OpenPositions(ctx, "acct-1")
		require.NoError(t, err)
		assert.Empty(t, open)
	})

	t.Run("spent weekly budget halves the size", func(t *testing.T) {
		f := newCycleFixture(t, buy90)
		// Monday of the same week, outside today's window.
		f.store.Seed(store.Position{
			ID:        "monday-loss",
			AccountID: "acct-1",
			Symbol:    "BTCUSDT",
			Status:    store.PositionClosed,
			PnL:       -1100, // 11% of balance, over the 10% weekly cap
			ClosedAt:  time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC),
		})

		require.NoError(t, f.cycle.Run(ctx))
		open, err := f.store.OpenPositions(ctx, "acct-1")
		require.NoError(t, err)
		require.Len(t, open, 1)
		// Tier drops from 2% to 1%: 100 notional at 149.8.
		assert.InDelta(t, 0.667, open[0].Quantity, 1e-9)
	})

	t.Run("insufficient history waits for data", func(t *testing.T) {
		f := newCycleFixture(t, buy90)
		f.ex.SeedHistory("BTCUSDT", risingCloses(10))

		require.NoError(t, f.cycle.Run(ctx))
		assert.Equal(t, 0, f.advisor.callCount())
	})

	t.Run("concurrent passes execute exactly once", func(t *testing.T) {
		f := newCycleFixture(t, buy90)
		f.advisor.delay = 50 * time.Millisecond

		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, f.cycle.Run(ctx))
			}()
		}
		wg.Wait()

		open, err := f.store.OpenPositions(ctx, "acct-1")
		require.NoError(t, err)
		assert.Len(t, open, 1)
		assert.Equal(t, 1, f.advisor.callCount())
	})
}

func TestLockRegistry(t *testing.T) {
	locks := NewLockRegistry()
	require.True(t, locks.TryAcquire("a"))
	assert.False(t, locks.TryAcquire("a"))
	assert.True(t, locks.TryAcquire("b"))
	locks.Release("a")
	assert.True(t, locks.TryAcquire("a"))
}
