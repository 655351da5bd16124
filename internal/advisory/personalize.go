package advisory

import (
	"context"

	"unitrader/internal/logger"
	"unitrader/internal/store"
)

// AdjusterConfig tunes the win-rate personalization. The lookback and
// minimum sample size are deliberately configuration, not constants.
type AdjusterConfig struct {
	Lookback        int     // closed trades considered
	MinSamples      int     // below this, no adjustment
	GoodWinRate     float64 // percent
	PoorWinRate     float64 // percent
	ConfidenceNudge int     // applied up or down
	MaxNudge        int     // hard cap on the nudge
}

func (c AdjusterConfig) withDefaults() AdjusterConfig {
	if c.Lookback <= 0 {
		c.Lookback = 50
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 5
	}
	if c.GoodWinRate <= 0 {
		c.GoodWinRate = 65
	}
	if c.PoorWinRate <= 0 {
		c.PoorWinRate = 40
	}
	if c.ConfidenceNudge <= 0 {
		c.ConfidenceNudge = 5
	}
	if c.MaxNudge <= 0 {
		c.MaxNudge = 10
	}
	return c
}

// Adjuster scales confidence using the account's realized win rate on the
// same symbol + trend setup. It never changes the action and never pushes
// confidence outside [0,100].
type Adjuster struct {
	store store.Store
	cfg   AdjusterConfig
}

func NewAdjuster(st store.Store, cfg AdjusterConfig) *Adjuster {
	return &Adjuster{store: st, cfg: cfg.withDefaults()}
}

func (a *Adjuster) Adjust(ctx context.Context, rec Recommendation, accountID, symbol, trend string) Recommendation {
	if rec.Action == ActionWait {
		return rec
	}
	stats, err := a.store.TradeStats(ctx, accountID, symbol, trend, a.cfg.Lookback)
	if err != nil {
		logger.Warnf("personalize: stats lookup failed for %s/%s: %v", accountID, symbol, err)
		return rec
	}
	if stats.Count < a.cfg.MinSamples {
		return rec
	}

	nudge := a.cfg.ConfidenceNudge
	if nudge > a.cfg.MaxNudge {
		nudge = a.cfg.MaxNudge
	}
	before := rec.Confidence
	switch {
	case stats.WinRate >= a.cfg.GoodWinRate:
		rec.Confidence = clampConfidence(rec.Confidence + nudge)
	case stats.WinRate <= a.cfg.PoorWinRate:
		rec.Confidence = clampConfidence(rec.Confidence - nudge)
	}
	if rec.Confidence != before {
		logger.Debugf("personalize: %s/%s win_rate=%.1f%% over %d trades, confidence %d -> %d",
			accountID, symbol, stats.WinRate, stats.Count, before, rec.Confidence)
	}
	return rec
}

func clampConfidence(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
