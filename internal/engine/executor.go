package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"unitrader/internal/exchange"
	"unitrader/internal/logger"
	"unitrader/internal/notify"
	"unitrader/internal/pkg/retry"
	"unitrader/internal/store"
)

// Executor walks a plan through entry, stop-loss and take-profit placement
// and records the outcome. A trade is never left unprotected: if protection
// cannot be placed after retries the entry is closed again, and if even that
// fails the position is flagged for manual intervention.
type Executor struct {
	ex       exchange.Exchange
	store    store.Store
	notifier notify.Notifier
	policy   retry.Policy
	now      func() time.Time
}

func NewExecutor(ex exchange.Exchange, st store.Store, notifier notify.Notifier) *Executor {
	return &Executor{
		ex:       ex,
		store:    st,
		notifier: notifier,
		policy:   retry.DefaultPolicy(exchange.IsTransient),
		now:      time.Now,
	}
}

// WithPolicy overrides the protection-order retry policy.
func (e *Executor) WithPolicy(p retry.Policy) *Executor {
	if p.Retryable == nil {
		p.Retryable = exchange.IsTransient
	}
	e.policy = p
	return e
}

// Execute places the orders for plan and persists the resulting position.
// The returned position is nil when the entry never filled or the trade was
// compensated away.
func (e *Executor) Execute(ctx context.Context, accountID string, plan *Plan, trend, rationale string) (*store.Position, error) {
	start := e.now()

	entryID, err := e.ex.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:   plan.Symbol,
		Side:     plan.Side,
		Quantity: plan.Quantity,
	})
	if err != nil {
		return nil, fmt.Errorf("entry order for %s: %w", plan.Symbol, err)
	}
	logger.Infof("executor: entry filled account=%s %s %s qty=%v entry=%v order=%s",
		accountID, plan.Side, plan.Symbol, plan.Quantity, plan.EntryPrice, entryID)

	stopID, err := e.placeProtection(ctx, plan.Symbol, "STOP_LOSS", func(ctx context.Context) (string, error) {
		return e.ex.SetStopLoss(ctx, plan.Symbol, plan.Side, plan.Quantity, plan.StopLoss)
	})
	if err != nil {
		return e.compensate(ctx, accountID, plan, entryID, "", start,
			fmt.Errorf("stop-loss placement: %w", err))
	}

	targetID, err := e.placeProtection(ctx, plan.Symbol, "TAKE_PROFIT", func(ctx context.Context) (string, error) {
		return e.ex.SetTakeProfit(ctx, plan.Symbol, plan.Side, plan.Quantity, plan.TakeProfit)
	})
	if err != nil {
		return e.compensate(ctx, accountID, plan, entryID, stopID, start,
			fmt.Errorf("take-profit placement: %w", err))
	}

	pos := &store.Position{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		Symbol:        plan.Symbol,
		Side:          plan.Side,
		Quantity:      plan.Quantity,
		EntryPrice:    plan.EntryPrice,
		StopLoss:      plan.StopLoss,
		TakeProfit:    plan.TakeProfit,
		Confidence:    plan.Confidence,
		Trend:         trend,
		Rationale:     rationale,
		Status:        store.PositionOpen,
		EntryOrderID:  entryID,
		StopOrderID:   stopID,
		TargetOrderID: targetID,
		ExecutionMS:   float64(e.now().Sub(start)) / float64(time.Millisecond),
		CreatedAt:     start.UTC(),
	}
	if err := e.store.CreatePosition(ctx, pos); err != nil {
		// Orders are live but the record is not: this needs a human.
		e.publish(notify.Event{
			Type:      notify.EventManualIntervention,
			AccountID: accountID,
			Symbol:    plan.Symbol,
			Priority:  notify.PriorityHigh,
			Fields: map[string]any{
				"cause":       "position not persisted",
				"entry_order": entryID,
				"error":       err.Error(),
			},
			At: e.now(),
		})
		return nil, fmt.Errorf("persist position: %w", err)
	}

	e.publish(notify.Event{
		Type:      notify.EventTradeOpened,
		AccountID: accountID,
		Symbol:    plan.Symbol,
		Fields: map[string]any{
			"side":        string(plan.Side),
			"quantity":    plan.Quantity,
			"entry":       plan.EntryPrice,
			"stop_loss":   plan.StopLoss,
			"take_profit": plan.TakeProfit,
			"confidence":  plan.Confidence,
		},
		At: e.now(),
	})
	return pos, nil
}

// placeProtection retries a protective order. Before each re-submit it lists
// open orders: a timed-out attempt may have landed, and a duplicate
// protection order would double the closing quantity.
func (e *Executor) placeProtection(ctx context.Context, symbol, typePrefix string, place func(ctx context.Context) (string, error)) (string, error) {
	attempt := 0
	var id string
	err := e.policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			if found := e.findOpenOrder(ctx, symbol, typePrefix); found != "" {
				logger.Warnf("executor: %s order for %s already live as %s, not re-submitting", typePrefix, symbol, found)
				id = found
				return nil
			}
		}
		var err error
		id, err = place(ctx)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (e *Executor) findOpenOrder(ctx context.Context, symbol, typePrefix string) string {
	orders, err := e.ex.GetOpenOrders(ctx, symbol)
	if err != nil {
		return ""
	}
	for _, o := range orders {
		if strings.HasPrefix(o.Type, typePrefix) {
			return o.ID
		}
	}
	return ""
}

// compensate unwinds an entry whose protection could not be placed. If the
// closing order also fails the position is recorded open with the
// intervention flag set so a human resolves it.
func (e *Executor) compensate(ctx context.Context, accountID string, plan *Plan, entryID, stopID string, start time.Time, cause error) (*store.Position, error) {
	logger.Errorf("executor: compensating %s on %s: %v", plan.Symbol, accountID, cause)
	if stopID != "" {
		if err := e.ex.CancelOrder(ctx, plan.Symbol, stopID); err != nil {
			logger.Warnf("executor: cancel stop order %s: %v", stopID, err)
		}
	}

	fill, closeErr := e.ex.ClosePosition(ctx, plan.Symbol, plan.Side, plan.Quantity)
	if closeErr != nil {
		pos := &store.Position{
			ID:                uuid.NewString(),
			AccountID:         accountID,
			Symbol:            plan.Symbol,
			Side:              plan.Side,
			Quantity:          plan.Quantity,
			EntryPrice:        plan.EntryPrice,
			StopLoss:          plan.StopLoss,
			TakeProfit:        plan.TakeProfit,
			Confidence:        plan.Confidence,
			Status:            store.PositionOpen,
			NeedsIntervention: true,
			EntryOrderID:      entryID,
			CreatedAt:         start.UTC(),
		}
		if err := e.store.CreatePosition(ctx, pos); err != nil {
			logger.Errorf("executor: persist intervention position: %v", err)
		}
		e.publish(notify.Event{
			Type:      notify.EventManualIntervention,
			AccountID: accountID,
			Symbol:    plan.Symbol,
			Priority:  notify.PriorityHigh,
			Fields: map[string]any{
				"cause":       cause.Error(),
				"close_error": closeErr.Error(),
				"quantity":    plan.Quantity,
			},
			At: e.now(),
		})
		return nil, fmt.Errorf("unprotected position on %s needs manual intervention: %w", plan.Symbol, cause)
	}

	pnl, pnlPct := TradePnL(plan.Side, plan.EntryPrice, fill, plan.Quantity)
	pos := &store.Position{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Symbol:       plan.Symbol,
		Side:         plan.Side,
		Quantity:     plan.Quantity,
		EntryPrice:   plan.EntryPrice,
		StopLoss:     plan.StopLoss,
		TakeProfit:   plan.TakeProfit,
		Confidence:   plan.Confidence,
		Status:       store.PositionClosed,
		EntryOrderID: entryID,
		ExitPrice:    fill,
		PnL:          pnl,
		PnLPercent:   pnlPct,
		CloseReason:  store.CloseReasonManual,
		CreatedAt:    start.UTC(),
		ClosedAt:     e.now().UTC(),
	}
	if err := e.store.CreatePosition(ctx, pos); err != nil {
		logger.Errorf("executor: persist compensated position: %v", err)
	}
	e.publish(notify.Event{
		Type:      notify.EventTradeClosed,
		AccountID: accountID,
		Symbol:    plan.Symbol,
		Fields: map[string]any{
			"reason": "protection placement failed",
			"exit":   fill,
			"pnl":    pnl,
		},
		At: e.now(),
	})
	return nil, fmt.Errorf("trade compensated: %w", cause)
}

func (e *Executor) publish(event notify.Event) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Publish(event); err != nil {
		logger.Warnf("executor: notify %s: %v", event.Type, err)
	}
}

// TradePnL returns the dollar and percent P&L of a round trip.
func TradePnL(side exchange.Side, entry, exit, quantity float64) (pnl, pct float64) {
	switch side {
	case exchange.SideBuy:
		pnl = (exit - entry) * quantity
	case exchange.SideSell:
		pnl = (entry - exit) * quantity
	}
	if entry > 0 && quantity > 0 {
		pct = pnl / (entry * quantity) * 100
	}
	return pnl, pct
}
