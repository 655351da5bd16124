// Package monitor runs the independent position-watch loop: protective-price
// closes, loss-budget enforcement and the per-account circuit breakers. It
// runs on its own interval and never depends on the decision cycle being
// healthy.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"unitrader/internal/engine"
	"unitrader/internal/exchange"
	"unitrader/internal/logger"
	"unitrader/internal/notify"
	"unitrader/internal/pkg/circuit"
	"unitrader/internal/risk"
	"unitrader/internal/store"
)

// Monitor watches one account.
type Monitor struct {
	accountID string
	ex        exchange.Exchange
	store     store.Store
	notifier  notify.Notifier
	locks     *engine.LockRegistry
	limits    func() risk.Limits
	venue     *circuit.Breaker
	now       func() time.Time
}

func New(accountID string, ex exchange.Exchange, st store.Store, notifier notify.Notifier, locks *engine.LockRegistry, limits func() risk.Limits) *Monitor {
	m := &Monitor{
		accountID: accountID,
		ex:        ex,
		store:     st,
		notifier:  notifier,
		locks:     locks,
		limits:    limits,
		venue:     circuit.New("venue:"+ex.Name(), 3, 2*time.Minute),
		now:       time.Now,
	}
	m.venue.OnStateChange(func(name string, from, to circuit.State) {
		logger.Warnf("monitor: breaker %s %s -> %s", name, from, to)
	})
	return m
}

// Tick runs one monitoring pass. It shares the account lock with the
// decision cycle, so a pass is skipped rather than run concurrently with a
// trade being opened.
func (m *Monitor) Tick(ctx context.Context) error {
	if !m.locks.TryAcquire(m.accountID) {
		logger.Debugf("monitor: account %s busy, skipping tick", m.accountID)
		return nil
	}
	defer m.locks.Release(m.accountID)
	return m.tick(ctx)
}

func (m *Monitor) tick(ctx context.Context) error {
	now := m.now()
	limits := m.limits().WithDefaults()

	state := m.loadBreaker(ctx)
	// Cool-down clearing happens only here, at the start of a tick, so a
	// breaker never flaps mid-pass.
	if state.Active() && state.CanClear(now) {
		if cleared, err := m.tryClear(ctx, state, now, limits); err != nil {
			logger.Warnf("monitor: breaker re-check for %s: %v", m.accountID, err)
		} else if cleared {
			state = risk.State{}
		}
	}

	if state.Active() && state.Flag == risk.FlagVenueDown {
		logger.Infof("monitor: venue breaker active for %s, skipping tick", m.accountID)
		return nil
	}

	open, err := m.store.OpenPositions(ctx, m.accountID)
	if err != nil {
		return fmt.Errorf("open positions for %s: %w", m.accountID, err)
	}
	prices := m.fetchPrices(ctx, open)

	for i := range open {
		pos := open[i]
		if pos.NeedsIntervention {
			continue
		}
		price, ok := prices[pos.Symbol]
		if !ok {
			continue
		}
		if reason, hit := protectiveHit(&pos, price); hit {
			if err := m.closePosition(ctx, &pos, reason); err != nil {
				logger.Errorf("monitor: close %s on %s: %v", pos.ID, m.accountID, err)
			}
		}
	}

	balance, err := m.balance(ctx)
	if err != nil {
		// Without a balance the loss percentages are meaningless; never
		// enforce budgets (or force-close) off an unknown denominator.
		logger.Warnf("monitor: balance for %s unavailable, skipping loss-budget checks: %v", m.accountID, err)
		m.checkBreakers(ctx, state, risk.Snapshot{}, now, limits)
		return nil
	}
	closed, err := m.store.ClosedSince(ctx, m.accountID, risk.SnapshotStart(now))
	if err != nil {
		return fmt.Errorf("closed positions for %s: %w", m.accountID, err)
	}
	snap := risk.BuildSnapshot(now, balance, closed)

	if snap.MonthlyExceeded(limits) {
		m.forceCloseAll(ctx, limits)
	}

	m.checkBreakers(ctx, state, snap, now, limits)
	return nil
}

// protectiveHit reports whether price has crossed the position's stop or
// target and which close reason applies.
func protectiveHit(pos *store.Position, price float64) (store.CloseReason, bool) {
	switch pos.Side {
	case exchange.SideBuy:
		if price <= pos.StopLoss {
			return store.CloseReasonStopLoss, true
		}
		if price >= pos.TakeProfit {
			return store.CloseReasonTakeProfit, true
		}
	case exchange.SideSell:
		if price >= pos.StopLoss {
			return store.CloseReasonStopLoss, true
		}
		if price <= pos.TakeProfit {
			return store.CloseReasonTakeProfit, true
		}
	}
	return "", false
}

// fetchPrices pulls each distinct symbol once per tick.
func (m *Monitor) fetchPrices(ctx context.Context, open []store.Position) map[string]float64 {
	prices := make(map[string]float64)
	for i := range open {
		symbol := open[i].Symbol
		if _, done := prices[symbol]; done {
			continue
		}
		price, err := m.ex.GetCurrentPrice(ctx, symbol)
		if err != nil {
			m.recordVenue(err)
			logger.Warnf("monitor: price for %s: %v", symbol, err)
			continue
		}
		m.recordVenue(nil)
		prices[symbol] = price
	}
	return prices
}

func (m *Monitor) balance(ctx context.Context) (float64, error) {
	balance, err := m.ex.GetBalance(ctx)
	m.recordVenue(err)
	return balance, err
}

func (m *Monitor) recordVenue(err error) {
	if err == nil {
		m.venue.RecordSuccess()
		return
	}
	if exchange.IsTransient(err) {
		m.venue.RecordFailure()
	}
}

// closePosition cancels the remaining protection orders, closes at market
// and records the realized outcome.
func (m *Monitor) closePosition(ctx context.Context, pos *store.Position, reason store.CloseReason) error {
	for _, orderID := range []string{pos.StopOrderID, pos.TargetOrderID} {
		if orderID == "" {
			continue
		}
		if err := m.ex.CancelOrder(ctx, pos.Symbol, orderID); err != nil {
			logger.Warnf("monitor: cancel order %s on %s: %v", orderID, pos.Symbol, err)
		}
	}

	fill, err := m.ex.ClosePosition(ctx, pos.Symbol, pos.Side, pos.Quantity)
	if err != nil {
		m.recordVenue(err)
		pos.NeedsIntervention = true
		if uerr := m.store.UpdatePosition(ctx, pos); uerr != nil {
			logger.Errorf("monitor: flag intervention on %s: %v", pos.ID, uerr)
		}
		m.publish(notify.Event{
			Type:      notify.EventManualIntervention,
			AccountID: pos.AccountID,
			Symbol:    pos.Symbol,
			Priority:  notify.PriorityHigh,
			Fields:    map[string]any{"cause": "close failed", "error": err.Error(), "position": pos.ID},
			At:        m.now(),
		})
		return err
	}
	m.recordVenue(nil)

	pos.Status = store.PositionClosed
	pos.ExitPrice = fill
	pos.PnL, pos.PnLPercent = engine.TradePnL(pos.Side, pos.EntryPrice, fill, pos.Quantity)
	pos.CloseReason = reason
	pos.ClosedAt = m.now().UTC()
	if err := m.store.UpdatePosition(ctx, pos); err != nil {
		return fmt.Errorf("record close of %s: %w", pos.ID, err)
	}

	logger.Infof("monitor: closed %s %s reason=%s exit=%v pnl=%.2f", pos.AccountID, pos.Symbol, reason, fill, pos.PnL)
	m.publish(notify.Event{
		Type:      notify.EventTradeClosed,
		AccountID: pos.AccountID,
		Symbol:    pos.Symbol,
		Fields: map[string]any{
			"reason":  string(reason),
			"exit":    fill,
			"pnl":     pos.PnL,
			"pnl_pct": pos.PnLPercent,
		},
		At: m.now(),
	})
	return nil
}

// CloseManually closes one position at market on operator request.
func (m *Monitor) CloseManually(ctx context.Context, positionID string) error {
	if !m.locks.TryAcquire(m.accountID) {
		return fmt.Errorf("account %s is busy, try again", m.accountID)
	}
	defer m.locks.Release(m.accountID)

	pos, err := m.store.GetPosition(ctx, positionID)
	if err != nil {
		return err
	}
	if pos.AccountID != m.accountID {
		return fmt.Errorf("position %s does not belong to account %s", positionID, m.accountID)
	}
	if pos.Status != store.PositionOpen {
		return fmt.Errorf("position %s is already closed", positionID)
	}
	return m.closePosition(ctx, pos, store.CloseReasonManual)
}

// forceCloseAll liquidates every open position when the monthly loss budget
// is spent.
func (m *Monitor) forceCloseAll(ctx context.Context, limits risk.Limits) {
	open, err := m.store.OpenPositions(ctx, m.accountID)
	if err != nil {
		logger.Errorf("monitor: force-close listing for %s: %v", m.accountID, err)
		return
	}
	if len(open) == 0 {
		return
	}
	logger.Warnf("monitor: monthly loss budget spent on %s, force-closing %d positions", m.accountID, len(open))
	for i := range open {
		pos := open[i]
		if pos.NeedsIntervention {
			continue
		}
		if err := m.closePosition(ctx, &pos, store.CloseReasonCircuitBreaker); err != nil {
			logger.Errorf("monitor: force-close %s: %v", pos.ID, err)
		}
	}
}

// checkBreakers evaluates the trip conditions and persists any new flag.
func (m *Monitor) checkBreakers(ctx context.Context, state risk.State, snap risk.Snapshot, now time.Time, limits risk.Limits) {
	if state.Active() {
		return
	}

	var flag risk.Flag
	var detail map[string]any
	switch {
	case snap.MonthlyExceeded(limits):
		flag = risk.FlagMonthlyLoss
		detail = map[string]any{"monthly_loss_pct": snap.MonthlyLossPct(), "limit_pct": limits.MonthlyLossPct}
	case snap.HourlyExceeded(limits):
		flag = risk.FlagHourlyLoss
		detail = map[string]any{"hourly_loss_pct": snap.HourlyLossPct(), "limit_pct": limits.HourlyLossPct}
	case m.venue.Open():
		flag = risk.FlagVenueDown
		detail = map[string]any{"venue": m.ex.Name()}
	default:
		count, err := m.store.CountCreatedSince(ctx, m.accountID, risk.HourAgo(now))
		if err != nil {
			logger.Warnf("monitor: trade count for %s: %v", m.accountID, err)
			return
		}
		if count > limits.MaxTradesPerHour {
			flag = risk.FlagAbnormalFrequency
			detail = map[string]any{"trades_last_hour": count, "limit": limits.MaxTradesPerHour}
		}
	}
	if flag == risk.FlagNone {
		return
	}

	state = state.Trip(flag, now, limits.BreakerCooldown)
	if err := m.store.SaveBreakerState(ctx, state.Record(m.accountID, now)); err != nil {
		logger.Errorf("monitor: persist breaker for %s: %v", m.accountID, err)
	}
	logger.Warnf("monitor: %s breaker tripped for %s, cooldown %s", flag, m.accountID, limits.BreakerCooldown)
	m.publish(notify.Event{
		Type:      notify.EventBreakerActivated,
		AccountID: m.accountID,
		Priority:  notify.PriorityHigh,
		Fields:    mergeFields(map[string]any{"flag": string(flag)}, detail),
		At:        now,
	})
}

// tryClear re-checks the tripping condition after the cool-down; a breaker
// only clears when the condition has actually passed.
func (m *Monitor) tryClear(ctx context.Context, state risk.State, now time.Time, limits risk.Limits) (bool, error) {
	switch state.Flag {
	case risk.FlagHourlyLoss, risk.FlagMonthlyLoss:
		balance, err := m.balance(ctx)
		if err != nil {
			return false, err
		}
		closed, err := m.store.ClosedSince(ctx, m.accountID, risk.SnapshotStart(now))
		if err != nil {
			return false, err
		}
		snap := risk.BuildSnapshot(now, balance, closed)
		if state.Flag == risk.FlagHourlyLoss && snap.HourlyExceeded(limits) {
			return false, nil
		}
		if state.Flag == risk.FlagMonthlyLoss && snap.MonthlyExceeded(limits) {
			return false, nil
		}
	case risk.FlagVenueDown:
		if !m.venue.Allow() {
			return false, nil
		}
		if _, err := m.balance(ctx); err != nil {
			return false, nil
		}
	case risk.FlagAbnormalFrequency:
		count, err := m.store.CountCreatedSince(ctx, m.accountID, risk.HourAgo(now))
		if err != nil {
			return false, err
		}
		if count > limits.MaxTradesPerHour {
			return false, nil
		}
	}

	if err := m.store.SaveBreakerState(ctx, risk.State{}.Record(m.accountID, now)); err != nil {
		return false, err
	}
	logger.Infof("monitor: %s breaker cleared for %s", state.Flag, m.accountID)
	return true, nil
}

func (m *Monitor) loadBreaker(ctx context.Context) risk.State {
	rec, err := m.store.BreakerState(ctx, m.accountID)
	if errors.Is(err, store.ErrNotFound) {
		return risk.State{}
	}
	if err != nil {
		logger.Warnf("monitor: breaker state for %s: %v", m.accountID, err)
		return risk.State{}
	}
	return risk.StateFromRecord(rec)
}

func (m *Monitor) publish(event notify.Event) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(event); err != nil {
		logger.Warnf("monitor: notify %s: %v", event.Type, err)
	}
}

func mergeFields(base, extra map[string]any) map[string]any {
	for k, v := range extra {
		base[k] = v
	}
	return base
}
