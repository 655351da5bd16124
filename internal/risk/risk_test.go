package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"unitrader/internal/store"
)

func TestWindows(t *testing.T) {
	// Wednesday 2025-06-18 14:30 UTC.
	now := time.Date(2025, 6, 18, 14, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC), DayStart(now))
	assert.Equal(t, time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC), WeekStart(now))
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), MonthStart(now))
	assert.Equal(t, now.Add(-time.Hour), HourAgo(now))

	t.Run("sunday belongs to the week starting the previous monday", func(t *testing.T) {
		sunday := time.Date(2025, 6, 22, 23, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC), WeekStart(sunday))
	})

	t.Run("monday starts its own week", func(t *testing.T) {
		monday := time.Date(2025, 6, 23, 0, 5, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2025, 6, 23, 0, 0, 0, 0, time.UTC), WeekStart(monday))
	})

	t.Run("non-utc input is normalized", func(t *testing.T) {
		loc := time.FixedZone("UTC+9", 9*3600)
		// 08:00 on the 18th in UTC+9 is 23:00 on the 17th UTC.
		local := time.Date(2025, 6, 18, 8, 0, 0, 0, loc)
		assert.Equal(t, time.Date(2025, 6, 17, 0, 0, 0, 0, time.UTC), DayStart(local))
	})
}

func TestSnapshotStart(t *testing.T) {
	t.Run("mid-month the month start is earliest", func(t *testing.T) {
		now := time.Date(2025, 6, 18, 14, 30, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), SnapshotStart(now))
	})

	t.Run("week spanning a month boundary reaches into the old month", func(t *testing.T) {
		// Tuesday 2025-07-01: the ISO week began Monday 2025-06-30.
		now := time.Date(2025, 7, 1, 0, 20, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), SnapshotStart(now))
	})

	t.Run("first hour of a monday month reaches back one hour", func(t *testing.T) {
		// Monday 2025-09-01 00:30: week and month both start at midnight,
		// the rolling hour starts before it.
		now := time.Date(2025, 9, 1, 0, 30, 0, 0, time.UTC)
		assert.Equal(t, now.Add(-time.Hour), SnapshotStart(now))
	})
}

func closedLoss(at time.Time, loss float64) store.Position {
	return store.Position{
		Status:   store.PositionClosed,
		PnL:      -loss,
		ClosedAt: at,
	}
}

func TestBuildSnapshot(t *testing.T) {
	now := time.Date(2025, 6, 18, 14, 30, 0, 0, time.UTC)
	balance := 10000.0

	positions := []store.Position{
		closedLoss(now.Add(-20*time.Minute), 100),             // counts everywhere
		closedLoss(now.Add(-5*time.Hour), 150),                // today but outside the hour
		closedLoss(time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC), 200),  // this week, not today
		closedLoss(time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC), 400),   // this month, not this week
		closedLoss(time.Date(2025, 5, 28, 9, 0, 0, 0, time.UTC), 9999), // last month, ignored
		{Status: store.PositionClosed, PnL: 500, ClosedAt: now.Add(-10 * time.Minute)}, // winner, ignored
		{Status: store.PositionOpen, PnL: -50, ClosedAt: time.Time{}},                  // open, ignored
	}

	s := BuildSnapshot(now, balance, positions)
	assert.InDelta(t, 100, s.HourlyLoss, 1e-9)
	assert.InDelta(t, 250, s.DailyLoss, 1e-9)
	assert.InDelta(t, 450, s.WeeklyLoss, 1e-9)
	assert.InDelta(t, 850, s.MonthlyLoss, 1e-9)

	assert.InDelta(t, 1.0, s.HourlyLossPct(), 1e-9)
	assert.InDelta(t, 2.5, s.DailyLossPct(), 1e-9)
	assert.InDelta(t, 4.5, s.WeeklyLossPct(), 1e-9)
	assert.InDelta(t, 8.5, s.MonthlyLossPct(), 1e-9)
}

func TestSnapshotExceeded(t *testing.T) {
	limits := Limits{}.WithDefaults()

	t.Run("defaults", func(t *testing.T) {
		assert.Equal(t, 5.0, limits.DailyLossPct)
		assert.Equal(t, 10.0, limits.WeeklyLossPct)
		assert.Equal(t, 15.0, limits.MonthlyLossPct)
		assert.Equal(t, 3.0, limits.HourlyLossPct)
		assert.Equal(t, 20, limits.MaxTradesPerHour)
		assert.Equal(t, 0.5, limits.SizeReductionFactor)
	})

	t.Run("thresholds are inclusive", func(t *testing.T) {
		s := Snapshot{Balance: 10000, DailyLoss: 500, HourlyLoss: 300}
		assert.True(t, s.DailyExceeded(limits))
		assert.True(t, s.HourlyExceeded(limits))
		assert.False(t, s.WeeklyExceeded(limits))
		assert.False(t, s.MonthlyExceeded(limits))
	})

	t.Run("just under threshold passes", func(t *testing.T) {
		s := Snapshot{Balance: 10000, DailyLoss: 499.99}
		assert.False(t, s.DailyExceeded(limits))
	})

	t.Run("zero balance with losses is treated as exceeded", func(t *testing.T) {
		s := Snapshot{Balance: 0, DailyLoss: 1}
		assert.True(t, s.DailyExceeded(limits))
	})
}

func TestBreakerState(t *testing.T) {
	now := time.Date(2025, 6, 18, 14, 0, 0, 0, time.UTC)

	t.Run("trip and cooldown", func(t *testing.T) {
		s := State{}.Trip(FlagHourlyLoss, now, time.Hour)
		assert.True(t, s.Active())
		assert.Equal(t, FlagHourlyLoss, s.Flag)
		assert.False(t, s.CanClear(now.Add(59*time.Minute)))
		assert.True(t, s.CanClear(now.Add(time.Hour)))
	})

	t.Run("second trip keeps the original flag", func(t *testing.T) {
		s := State{}.Trip(FlagVenueDown, now, time.Hour)
		s = s.Trip(FlagHourlyLoss, now.Add(30*time.Minute), time.Hour)
		assert.Equal(t, FlagVenueDown, s.Flag)
		assert.Equal(t, now, s.ActivatedAt)
	})

	t.Run("inactive state can always clear", func(t *testing.T) {
		assert.True(t, State{}.CanClear(now))
	})

	t.Run("record round trip", func(t *testing.T) {
		s := State{}.Trip(FlagAbnormalFrequency, now, 2*time.Hour)
		rec := s.Record("acct-1", now)
		assert.Equal(t, "acct-1", rec.AccountID)
		assert.Equal(t, s, StateFromRecord(rec))
	})

	t.Run("nil record is a clean state", func(t *testing.T) {
		assert.False(t, StateFromRecord(nil).Active())
	})
}
