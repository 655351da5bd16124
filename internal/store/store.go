// Package store defines the persistence contract for positions, trade
// history queries and circuit-breaker state. The engine requires atomic
// updates per record only; no cross-record transactions are assumed.
package store

import (
	"context"
	"errors"
	"time"

	"unitrader/internal/exchange"
)

var ErrNotFound = errors.New("store: record not found")

type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

type CloseReason string

const (
	CloseReasonStopLoss       CloseReason = "stop_loss"
	CloseReasonTakeProfit     CloseReason = "take_profit"
	CloseReasonManual         CloseReason = "manual"
	CloseReasonCircuitBreaker CloseReason = "circuit_breaker"
)

// Position is the engine's record of one trade. It is created by the
// execution coordinator and mutated only by the monitor loop on closure.
type Position struct {
	ID                string
	AccountID         string
	Symbol            string
	Side              exchange.Side
	Quantity          float64
	EntryPrice        float64
	StopLoss          float64
	TakeProfit        float64
	Confidence        int
	Trend             string
	Rationale         string
	Status            PositionStatus
	NeedsIntervention bool

	EntryOrderID  string
	StopOrderID   string
	TargetOrderID string
	ExecutionMS   float64

	ExitPrice   float64
	PnL         float64
	PnLPercent  float64
	CloseReason CloseReason

	CreatedAt time.Time
	ClosedAt  time.Time
}

// RealizedLoss returns the positive dollar loss of a closed position, zero
// for winners and open positions.
func (p *Position) RealizedLoss() float64 {
	if p.Status != PositionClosed || p.PnL >= 0 {
		return 0
	}
	return -p.PnL
}

// TradeStats summarizes closed trades for a symbol+trend setup.
type TradeStats struct {
	Count      int
	WinRate    float64 // percent, 0-100
	AvgWinPct  float64
	AvgLossPct float64
}

// BreakerRecord persists a per-account circuit-breaker flag so halts survive
// restarts.
type BreakerRecord struct {
	AccountID   string
	Flag        string
	ActivatedAt time.Time
	Cooldown    time.Duration
	UpdatedAt   time.Time
}

type Store interface {
	CreatePosition(ctx context.Context, p *Position) error

	UpdatePosition(ctx context.Context, p *Position) error

	GetPosition(ctx context.Context, id string) (*Position, error)

	OpenPositions(ctx context.Context, accountID string) ([]Position, error)

	// ClosedSince returns positions closed at or after since, newest first.
	ClosedSince(ctx context.Context, accountID string, since time.Time) ([]Position, error)

	// CountCreatedSince counts trades opened at or after since, for the
	// trade-frequency breaker.
	CountCreatedSince(ctx context.Context, accountID string, since time.Time) (int, error)

	// TradeStats computes the win rate over the last lookback closed trades
	// sharing symbol and trend label.
	TradeStats(ctx context.Context, accountID, symbol, trend string, lookback int) (TradeStats, error)

	// BreakerState returns ErrNotFound when no flag was ever persisted.
	BreakerState(ctx context.Context, accountID string) (*BreakerRecord, error)

	SaveBreakerState(ctx context.Context, rec *BreakerRecord) error

	Close() error
}
