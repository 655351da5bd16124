package risk

import (
	"time"

	"unitrader/internal/store"
)

// Flag names the condition that tripped the per-account circuit breaker.
type Flag string

const (
	FlagNone              Flag = ""
	FlagHourlyLoss        Flag = "hourly_loss"
	FlagMonthlyLoss       Flag = "monthly_loss"
	FlagVenueDown         Flag = "venue_down"
	FlagAbnormalFrequency Flag = "abnormal_frequency"
)

// State is one account's breaker: a flag, when it tripped and how long it
// must stay up. While active, no new trades are opened for the account.
type State struct {
	Flag        Flag
	ActivatedAt time.Time
	Cooldown    time.Duration
}

func (s State) Active() bool { return s.Flag != FlagNone }

// CanClear reports whether the cooldown has fully elapsed. Clearing also
// requires the tripping condition to be re-checked by the caller.
func (s State) CanClear(now time.Time) bool {
	if !s.Active() {
		return true
	}
	return !now.Before(s.ActivatedAt.Add(s.Cooldown))
}

// Trip raises flag unless one is already active; an active breaker keeps its
// original flag and clock.
func (s State) Trip(flag Flag, now time.Time, cooldown time.Duration) State {
	if s.Active() {
		return s
	}
	return State{Flag: flag, ActivatedAt: now.UTC(), Cooldown: cooldown}
}

func (s State) Clear() State { return State{} }

// Record converts the state for persistence so halts survive restarts.
func (s State) Record(accountID string, now time.Time) *store.BreakerRecord {
	return &store.BreakerRecord{
		AccountID:   accountID,
		Flag:        string(s.Flag),
		ActivatedAt: s.ActivatedAt,
		Cooldown:    s.Cooldown,
		UpdatedAt:   now.UTC(),
	}
}

func StateFromRecord(rec *store.BreakerRecord) State {
	if rec == nil {
		return State{}
	}
	return State{
		Flag:        Flag(rec.Flag),
		ActivatedAt: rec.ActivatedAt,
		Cooldown:    rec.Cooldown,
	}
}
