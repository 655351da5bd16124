package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"unitrader/internal/advisory"
	"unitrader/internal/exchange"
	"unitrader/internal/indicator"
	"unitrader/internal/logger"
	"unitrader/internal/risk"
	"unitrader/internal/store"
)

// Advisor produces the trade recommendation for one analysis pass.
type Advisor interface {
	GetRecommendation(ctx context.Context, bundle *indicator.Bundle, actx advisory.AccountContext) advisory.Recommendation
}

// ConfidenceAdjuster personalizes a recommendation against realized history.
type ConfidenceAdjuster interface {
	Adjust(ctx context.Context, rec advisory.Recommendation, accountID, symbol, trend string) advisory.Recommendation
}

// CycleConfig scopes one decision cycle to an account and symbol.
type CycleConfig struct {
	AccountID   string
	Symbol      string
	HistoryBars int // candles fetched per pass
	Sizing      SizingConfig
	Indicators  indicator.Config
}

func (c CycleConfig) withDefaults() CycleConfig {
	if c.HistoryBars <= 0 {
		c.HistoryBars = 250
	}
	c.Sizing = c.Sizing.WithDefaults()
	return c
}

// Cycle is one account's decision pipeline: indicators, advisory, sizing,
// safety gate, execution. A pass that places no trade is the normal case.
type Cycle struct {
	cfg      CycleConfig
	ex       exchange.Exchange
	store    store.Store
	advisor  Advisor
	adjuster ConfidenceAdjuster
	executor *Executor
	locks    *LockRegistry
	limits   func() risk.Limits
	now      func() time.Time
}

func NewCycle(cfg CycleConfig, ex exchange.Exchange, st store.Store, advisor Advisor, adjuster ConfidenceAdjuster, executor *Executor, locks *LockRegistry, limits func() risk.Limits) *Cycle {
	return &Cycle{
		cfg:      cfg.withDefaults(),
		ex:       ex,
		store:    st,
		advisor:  advisor,
		adjuster: adjuster,
		executor: executor,
		locks:    locks,
		limits:   limits,
		now:      time.Now,
	}
}

// Run executes one full pass. Skips (lock busy, breaker up, WAIT, safety
// reject) return nil; only infrastructure failures surface as errors.
func (c *Cycle) Run(ctx context.Context) error {
	if !c.locks.TryAcquire(c.cfg.AccountID) {
		logger.Debugf("cycle: account %s busy, skipping pass", c.cfg.AccountID)
		return nil
	}
	defer c.locks.Release(c.cfg.AccountID)
	return c.run(ctx)
}

func (c *Cycle) run(ctx context.Context) error {
	accountID, symbol := c.cfg.AccountID, c.cfg.Symbol

	if halted, flag := c.breakerActive(ctx); halted {
		logger.Infof("cycle: account %s halted by %s breaker, skipping pass", accountID, flag)
		return nil
	}

	candles, err := c.ex.GetPriceHistory(ctx, symbol, c.cfg.HistoryBars)
	if err != nil {
		return fmt.Errorf("price history for %s: %w", symbol, err)
	}
	series := make(indicator.Series, len(candles))
	for i, cd := range candles {
		series[i] = indicator.Point{Time: cd.Time, Price: cd.Close}
	}
	bundle, err := indicator.AnalyzeWith(c.cfg.Indicators, series)
	if errors.Is(err, indicator.ErrInsufficientData) {
		logger.Infof("cycle: %s has only %d candles, waiting for more data", symbol, len(series))
		return nil
	}
	if err != nil {
		return fmt.Errorf("analyze %s: %w", symbol, err)
	}

	balance, err := c.ex.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("balance for %s: %w", accountID, err)
	}
	open, err := c.store.OpenPositions(ctx, accountID)
	if err != nil {
		return fmt.Errorf("open positions for %s: %w", accountID, err)
	}
	limits := c.limits()
	trend := string(bundle.Trend)

	history, err := c.store.TradeStats(ctx, accountID, symbol, trend, 50)
	if err != nil {
		logger.Warnf("cycle: trade stats for %s/%s: %v", accountID, symbol, err)
		history = store.TradeStats{}
	}

	rec := c.advisor.GetRecommendation(ctx, bundle, advisory.AccountContext{
		AccountID:      accountID,
		Symbol:         symbol,
		Venue:          c.ex.Name(),
		Balance:        balance,
		OpenTrades:     len(open),
		History:        history,
		MaxPositionPct: c.cfg.Sizing.MaxPositionPct,
		DailyLossPct:   limits.DailyLossPct,
	})
	if c.adjuster != nil {
		rec = c.adjuster.Adjust(ctx, rec, accountID, symbol, trend)
	}
	if rec.Action == advisory.ActionWait {
		logger.Infof("cycle: WAIT for %s/%s: %s", accountID, symbol, rec.Rationale)
		return nil
	}
	side := exchange.SideBuy
	if rec.Action == advisory.ActionSell {
		side = exchange.SideSell
	}

	now := c.now()
	closed, err := c.store.ClosedSince(ctx, accountID, risk.SnapshotStart(now))
	if err != nil {
		return fmt.Errorf("closed positions for %s: %w", accountID, err)
	}
	snap := risk.BuildSnapshot(now, balance, closed)

	sizeFactor := 1.0
	if snap.WeeklyExceeded(limits) {
		sizeFactor = limits.SizeReductionFactor
		logger.Warnf("cycle: weekly loss %.2f%% >= %.2f%%, sizing at factor %.2f for %s",
			snap.WeeklyLossPct(), limits.WeeklyLossPct, sizeFactor, accountID)
	}

	entry := bundle.Price
	info, err := c.ex.GetSymbolInfo(ctx, symbol)
	if err != nil {
		return fmt.Errorf("symbol info for %s: %w", symbol, err)
	}
	plan, err := BuildPlan(c.cfg.Sizing, symbol, side, rec.Confidence, balance, entry, sizeFactor, info)
	if errors.Is(err, ErrNoTrade) {
		logger.Infof("cycle: %s/%s confidence %d below the trading tier, no trade", accountID, symbol, rec.Confidence)
		return nil
	}
	if err != nil {
		return fmt.Errorf("size %s trade on %s: %w", side, symbol, err)
	}

	if err := CheckPlan(c.cfg.Sizing, plan, balance, info, snap, limits); err != nil {
		if re, ok := AsReject(err); ok {
			logger.Infof("cycle: %s/%s %v", accountID, symbol, re)
			return nil
		}
		return err
	}

	_, err = c.executor.Execute(ctx, accountID, plan, trend, rec.Rationale)
	return err
}

func (c *Cycle) breakerActive(ctx context.Context) (bool, risk.Flag) {
	rec, err := c.store.BreakerState(ctx, c.cfg.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		return false, risk.FlagNone
	}
	if err != nil {
		logger.Warnf("cycle: breaker state for %s: %v", c.cfg.AccountID, err)
		// Unknown state halts trading; opening trades blind is worse.
		return true, risk.FlagNone
	}
	state := risk.StateFromRecord(rec)
	return state.Active(), state.Flag
}
