package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Paper is an in-memory venue used for dry-run mode and tests. Prices are
// seeded by the caller; orders fill immediately at the current mark.
type Paper struct {
	mu      sync.Mutex
	balance float64
	prices  map[string]float64
	history map[string][]Candle
	orders  map[string]Order
	infos   map[string]SymbolInfo
}

func NewPaper(balance float64) *Paper {
	return &Paper{
		balance: balance,
		prices:  make(map[string]float64),
		history: make(map[string][]Candle),
		orders:  make(map[string]Order),
		infos:   make(map[string]SymbolInfo),
	}
}

func (p *Paper) Name() string { return "paper" }

// SetPrice updates the mark price for symbol.
func (p *Paper) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	p.prices[symbol] = price
	p.mu.Unlock()
}

// SeedHistory replaces the candle history for symbol.
func (p *Paper) SeedHistory(symbol string, closes []float64) {
	base := time.Now().UTC().Add(-time.Duration(len(closes)) * 5 * time.Minute)
	candles := make([]Candle, 0, len(closes))
	for i, c := range closes {
		candles = append(candles, Candle{Time: base.Add(time.Duration(i) * 5 * time.Minute), Close: c})
	}
	p.mu.Lock()
	p.history[symbol] = candles
	if len(closes) > 0 {
		p.prices[symbol] = closes[len(closes)-1]
	}
	p.mu.Unlock()
}

// SetSymbolInfo overrides instrument metadata; unset symbols get defaults.
func (p *Paper) SetSymbolInfo(info SymbolInfo) {
	p.mu.Lock()
	p.infos[info.Symbol] = info
	p.mu.Unlock()
}

func (p *Paper) GetBalance(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

func (p *Paper) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("paper: no price for %s", symbol)
	}
	return price, nil
}

func (p *Paper) GetPriceHistory(ctx context.Context, symbol string, limit int) ([]Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	candles := p.history[symbol]
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	out := make([]Candle, len(candles))
	copy(out, candles)
	return out, nil
}

func (p *Paper) GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if info, ok := p.infos[symbol]; ok {
		return info, nil
	}
	return SymbolInfo{Symbol: symbol, TickSize: 0.01, StepSize: 0.00000001, MinNotional: 1}, nil
}

func (p *Paper) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price := req.Price
	if price <= 0 {
		price = p.prices[req.Symbol]
	}
	id := uuid.NewString()
	p.orders[id] = Order{
		ID:       id,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Type:     "MARKET",
		Quantity: req.Quantity,
		Price:    price,
		Status:   OrderStatusFilled,
	}
	return id, nil
}

func (p *Paper) SetStopLoss(ctx context.Context, symbol string, side Side, quantity, stopPrice float64) (string, error) {
	return p.placeProtection(symbol, side, quantity, stopPrice, "STOP_LOSS")
}

func (p *Paper) SetTakeProfit(ctx context.Context, symbol string, side Side, quantity, targetPrice float64) (string, error) {
	return p.placeProtection(symbol, side, quantity, targetPrice, "TAKE_PROFIT")
}

func (p *Paper) placeProtection(symbol string, side Side, quantity, price float64, typ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := uuid.NewString()
	p.orders[id] = Order{
		ID:       id,
		Symbol:   symbol,
		Side:     side.Opposite(),
		Type:     typ,
		Quantity: quantity,
		Price:    price,
		Status:   OrderStatusNew,
	}
	return id, nil
}

func (p *Paper) GetOpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Order
	for _, o := range p.orders {
		if o.Symbol == symbol && (o.Status == OrderStatusNew || o.Status == OrderStatusPartial) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (p *Paper) GetOrderStatus(ctx context.Context, symbol, orderID string) (OrderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return OrderStatusUnknown, fmt.Errorf("paper: unknown order %s", orderID)
	}
	return o.Status, nil
}

func (p *Paper) CancelOrder(ctx context.Context, symbol, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("paper: unknown order %s", orderID)
	}
	o.Status = OrderStatusCanceled
	p.orders[orderID] = o
	return nil
}

func (p *Paper) ClosePosition(ctx context.Context, symbol string, side Side, quantity float64) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("paper: no price for %s", symbol)
	}
	return price, nil
}

var _ Exchange = (*Paper)(nil)
var _ Exchange = (*Binance)(nil)
