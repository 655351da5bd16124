// Package exchange defines a common abstraction for trading venues.
// The engine only ever talks to this interface; concrete backends (Binance,
// paper) are selected per account by the factory.
package exchange

import (
	"context"
	"strings"
	"time"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the side that closes a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func ParseSide(raw string) (Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY":
		return SideBuy, true
	case "SELL":
		return SideSell, true
	default:
		return "", false
	}
}

type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "NEW"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusPartial  OrderStatus = "PARTIALLY_FILLED"
	OrderStatusCanceled OrderStatus = "CANCELED"
	OrderStatusRejected OrderStatus = "REJECTED"
	OrderStatusUnknown  OrderStatus = "UNKNOWN"
)

// OrderRequest describes an entry order. Price == 0 means market.
type OrderRequest struct {
	Symbol   string
	Side     Side
	Quantity float64
	Price    float64
}

// Order is a venue-side open order as reported by GetOpenOrders.
type Order struct {
	ID       string
	Symbol   string
	Side     Side
	Type     string
	Quantity float64
	Price    float64
	Status   OrderStatus
}

// SymbolInfo carries the instrument metadata needed to round derived prices
// and quantities before submission.
type SymbolInfo struct {
	Symbol      string
	TickSize    float64
	StepSize    float64
	MinNotional float64
}

// Candle is one close in a price history series, oldest first.
type Candle struct {
	Time  time.Time
	Close float64
}

// Exchange is the venue capability the engine consumes. Implementations must
// classify failures as transient or permanent (see Transient / IsTransient)
// so callers can decide whether a bounded retry is safe.
type Exchange interface {
	Name() string

	GetBalance(ctx context.Context) (float64, error)

	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)

	// GetPriceHistory returns up to limit recent closes, ascending by time.
	GetPriceHistory(ctx context.Context, symbol string, limit int) ([]Candle, error)

	GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error)

	PlaceOrder(ctx context.Context, req OrderRequest) (orderID string, err error)

	// SetStopLoss places a protective stop referencing the filled entry.
	SetStopLoss(ctx context.Context, symbol string, side Side, quantity, stopPrice float64) (orderID string, err error)

	SetTakeProfit(ctx context.Context, symbol string, side Side, quantity, targetPrice float64) (orderID string, err error)

	GetOpenOrders(ctx context.Context, symbol string) ([]Order, error)

	GetOrderStatus(ctx context.Context, symbol, orderID string) (OrderStatus, error)

	CancelOrder(ctx context.Context, symbol, orderID string) error

	// ClosePosition unwinds quantity of symbol at market and returns the
	// fill price.
	ClosePosition(ctx context.Context, symbol string, side Side, quantity float64) (fillPrice float64, err error)
}
