package risk

import (
	"time"

	"unitrader/internal/store"
)

// Limits holds the loss thresholds as percent of account balance, plus the
// trade-frequency and sizing knobs. Zero values take the defaults.
type Limits struct {
	DailyLossPct   float64
	WeeklyLossPct  float64
	MonthlyLossPct float64
	HourlyLossPct  float64

	MaxTradesPerHour    int
	SizeReductionFactor float64 // applied when the weekly budget is hit
	BreakerCooldown     time.Duration
}

func (l Limits) WithDefaults() Limits {
	if l.DailyLossPct <= 0 {
		l.DailyLossPct = 5
	}
	if l.WeeklyLossPct <= 0 {
		l.WeeklyLossPct = 10
	}
	if l.MonthlyLossPct <= 0 {
		l.MonthlyLossPct = 15
	}
	if l.HourlyLossPct <= 0 {
		l.HourlyLossPct = 3
	}
	if l.MaxTradesPerHour <= 0 {
		l.MaxTradesPerHour = 20
	}
	if l.SizeReductionFactor <= 0 || l.SizeReductionFactor > 1 {
		l.SizeReductionFactor = 0.5
	}
	if l.BreakerCooldown <= 0 {
		l.BreakerCooldown = time.Hour
	}
	return l
}

// Snapshot is the realized loss per window, as percent of balance, computed
// once per monitor tick from positions closed since the month began.
type Snapshot struct {
	Balance float64

	DailyLoss   float64 // dollars
	WeeklyLoss  float64
	MonthlyLoss float64
	HourlyLoss  float64
}

// BuildSnapshot buckets each closed position's realized loss into every
// window that contains its close time. closed must reach back to
// SnapshotStart(now), not just the month: the ISO week and the rolling hour
// can begin before the month does.
func BuildSnapshot(now time.Time, balance float64, closed []store.Position) Snapshot {
	s := Snapshot{Balance: balance}
	day, week, month, hour := DayStart(now), WeekStart(now), MonthStart(now), HourAgo(now)
	for i := range closed {
		loss := closed[i].RealizedLoss()
		if loss == 0 {
			continue
		}
		at := closed[i].ClosedAt.UTC()
		if !at.Before(month) {
			s.MonthlyLoss += loss
		}
		if !at.Before(week) {
			s.WeeklyLoss += loss
		}
		if !at.Before(day) {
			s.DailyLoss += loss
		}
		if !at.Before(hour) {
			s.HourlyLoss += loss
		}
	}
	return s
}

func (s Snapshot) pct(loss float64) float64 {
	if s.Balance <= 0 {
		if loss > 0 {
			return 100
		}
		return 0
	}
	return loss / s.Balance * 100
}

func (s Snapshot) DailyLossPct() float64   { return s.pct(s.DailyLoss) }
func (s Snapshot) WeeklyLossPct() float64  { return s.pct(s.WeeklyLoss) }
func (s Snapshot) MonthlyLossPct() float64 { return s.pct(s.MonthlyLoss) }
func (s Snapshot) HourlyLossPct() float64  { return s.pct(s.HourlyLoss) }

func (s Snapshot) DailyExceeded(l Limits) bool   { return s.DailyLossPct() >= l.DailyLossPct }
func (s Snapshot) WeeklyExceeded(l Limits) bool  { return s.WeeklyLossPct() >= l.WeeklyLossPct }
func (s Snapshot) MonthlyExceeded(l Limits) bool { return s.MonthlyLossPct() >= l.MonthlyLossPct }
func (s Snapshot) HourlyExceeded(l Limits) bool  { return s.HourlyLossPct() >= l.HourlyLossPct }
