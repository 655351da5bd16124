// Package engine turns a validated recommendation into a sized, protected,
// recorded trade: sizing tiers, the safety gate, per-account locking and the
// order-placement state machine.
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"unitrader/internal/exchange"
)

// ErrNoTrade reports a confidence below the minimum tier: there is no plan to
// build. Callers treat it as a normal skip, not a failure.
var ErrNoTrade = errors.New("sizing: confidence below the minimum trading tier")

// Plan is a fully sized trade ready for the safety gate and the executor.
type Plan struct {
	Symbol     string
	Side       exchange.Side
	Quantity   float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Notional   float64 // quantity * entry, post-rounding
	RiskPct    float64 // balance fraction tier that sized this plan, percent
	Confidence int
}

// SizingConfig holds the stop/target distances, the position cap and the
// balance margin the safety gate keeps in reserve. Zero values take the
// defaults: 2% adverse stop, 6% favorable target, 10% of balance per position
// at most, 5% margin.
type SizingConfig struct {
	StopLossPct      float64
	TakeProfitPct    float64
	MaxPositionPct   float64
	BalanceMarginPct float64
}

func (c SizingConfig) WithDefaults() SizingConfig {
	if c.StopLossPct <= 0 {
		c.StopLossPct = 2
	}
	if c.TakeProfitPct <= 0 {
		c.TakeProfitPct = 6
	}
	if c.MaxPositionPct <= 0 {
		c.MaxPositionPct = 10
	}
	if c.BalanceMarginPct <= 0 {
		c.BalanceMarginPct = 5
	}
	return c
}

// riskTier maps confidence to the percent of balance put at stake. Below 50
// the tier is zero and no trade may be sized.
func riskTier(confidence int) float64 {
	switch {
	case confidence >= 85:
		return 2.0
	case confidence >= 75:
		return 1.5
	case confidence >= 65:
		return 1.0
	case confidence >= 50:
		return 0.5
	default:
		return 0
	}
}

// BuildPlan sizes a trade from the confidence tier, derives the protective
// prices and rounds everything to the instrument's tick and step.
// sizeFactor scales the tier down when the weekly loss budget is spent; pass
// 1 otherwise.
func BuildPlan(cfg SizingConfig, symbol string, side exchange.Side, confidence int, balance, entry, sizeFactor float64, info exchange.SymbolInfo) (*Plan, error) {
	cfg = cfg.WithDefaults()
	if entry <= 0 {
		return nil, fmt.Errorf("sizing: entry price must be positive, got %v", entry)
	}
	if sizeFactor <= 0 || sizeFactor > 1 {
		sizeFactor = 1
	}

	tier := riskTier(confidence)
	if tier == 0 {
		return nil, ErrNoTrade
	}
	pct := tier * sizeFactor
	if pct > cfg.MaxPositionPct {
		pct = cfg.MaxPositionPct
	}
	notional := balance * pct / 100
	quantity := floorToStep(notional/entry, info.StepSize)

	var stop, target float64
	switch side {
	case exchange.SideBuy:
		stop = roundToTick(entry*(1-cfg.StopLossPct/100), info.TickSize)
		target = roundToTick(entry*(1+cfg.TakeProfitPct/100), info.TickSize)
	case exchange.SideSell:
		stop = roundToTick(entry*(1+cfg.StopLossPct/100), info.TickSize)
		target = roundToTick(entry*(1-cfg.TakeProfitPct/100), info.TickSize)
	default:
		return nil, fmt.Errorf("sizing: cannot size side %q", side)
	}

	p := &Plan{
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: target,
		Notional:   quantity * entry,
		RiskPct:    pct,
		Confidence: confidence,
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// validate enforces the protective-price ordering; a plan that fails here is
// a sizing bug, not a market condition.
func (p *Plan) validate() error {
	switch p.Side {
	case exchange.SideBuy:
		if !(p.StopLoss < p.EntryPrice && p.EntryPrice < p.TakeProfit) {
			return fmt.Errorf("sizing: BUY requires stop < entry < target, got %v / %v / %v",
				p.StopLoss, p.EntryPrice, p.TakeProfit)
		}
	case exchange.SideSell:
		if !(p.TakeProfit < p.EntryPrice && p.EntryPrice < p.StopLoss) {
			return fmt.Errorf("sizing: SELL requires target < entry < stop, got %v / %v / %v",
				p.TakeProfit, p.EntryPrice, p.StopLoss)
		}
	}
	return nil
}

// floorToStep truncates toward zero so a rounded quantity never exceeds the
// sized notional.
func floorToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	d := decimal.NewFromFloat(v)
	s := decimal.NewFromFloat(step)
	out, _ := d.Div(s).Floor().Mul(s).Float64()
	return out
}

func roundToTick(v, tick float64) float64 {
	if tick <= 0 {
		return v
	}
	d := decimal.NewFromFloat(v)
	t := decimal.NewFromFloat(tick)
	out, _ := d.Div(t).Round(0).Mul(t).Float64()
	return out
}
