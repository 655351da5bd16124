package engine

import (
	"errors"
	"fmt"
	"math"

	"unitrader/internal/exchange"
	"unitrader/internal/risk"
)

// RejectReason identifies which safety check refused the trade.
type RejectReason string

const (
	RejectLowConfidence       RejectReason = "low_confidence"
	RejectBelowMinimum        RejectReason = "below_minimum"
	RejectMissingStopLoss     RejectReason = "missing_stop_loss"
	RejectDailyLimitExceeded  RejectReason = "daily_limit_exceeded"
	RejectInsufficientBalance RejectReason = "insufficient_balance"
)

// RejectError is a refused trade, not a failure: callers log it and move on.
type RejectError struct {
	Reason RejectReason
	Detail string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("trade rejected (%s): %s", e.Reason, e.Detail)
}

func reject(reason RejectReason, format string, args ...any) error {
	return &RejectError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// AsReject unwraps a RejectError if err is one.
func AsReject(err error) (*RejectError, bool) {
	var re *RejectError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// minConfidence is the floor below which no trade is ever placed; it matches
// the zero tier in riskTier.
const minConfidence = 50

// CheckPlan runs the safety checks in a fixed order and returns the first
// violation. The order matters: the cheapest and most absolute checks come
// first so the reject reason is stable for a given plan.
func CheckPlan(cfg SizingConfig, plan *Plan, balance float64, info exchange.SymbolInfo, snap risk.Snapshot, limits risk.Limits) error {
	cfg = cfg.WithDefaults()
	if plan.Confidence < minConfidence {
		return reject(RejectLowConfidence, "confidence %d below minimum %d", plan.Confidence, minConfidence)
	}
	if plan.Quantity <= 0 || plan.Notional < info.MinNotional {
		return reject(RejectBelowMinimum, "notional %.4f below instrument minimum %.4f", plan.Notional, info.MinNotional)
	}
	if plan.StopLoss <= 0 {
		return reject(RejectMissingStopLoss, "plan has no stop-loss price")
	}
	if snap.DailyExceeded(limits) {
		return reject(RejectDailyLimitExceeded, "daily loss %.2f%% >= limit %.2f%%", snap.DailyLossPct(), limits.DailyLossPct)
	}
	// The trade must fit the remaining daily budget even if it stops out.
	worstCase := plan.Quantity * math.Abs(plan.EntryPrice-plan.StopLoss)
	if budget := balance * limits.DailyLossPct / 100; budget > 0 && snap.DailyLoss+worstCase > budget {
		return reject(RejectDailyLimitExceeded, "daily loss %.2f plus worst case %.2f exceeds budget %.2f",
			snap.DailyLoss, worstCase, budget)
	}
	if required := plan.Notional * (1 + cfg.BalanceMarginPct/100); required > balance {
		return reject(RejectInsufficientBalance, "notional %.4f plus %.1f%% margin exceeds balance %.4f",
			plan.Notional, cfg.BalanceMarginPct, balance)
	}
	return nil
}
