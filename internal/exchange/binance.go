package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
)

const binanceHistoryInterval = "5m"

// Binance implements Exchange against the spot REST API via go-binance.
type Binance struct {
	client *binance.Client
}

type BinanceConfig struct {
	APIKey      string
	APISecret   string
	RESTBaseURL string
	HTTPTimeout time.Duration
}

func NewBinance(cfg BinanceConfig) *Binance {
	client := binance.NewClient(cfg.APIKey, cfg.APISecret)
	if base := strings.TrimSpace(cfg.RESTBaseURL); base != "" {
		client.BaseURL = base
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	return &Binance{client: client}
}

func (b *Binance) Name() string { return "binance" }

// GetBalance returns the USDT spot balance (free + locked).
func (b *Binance) GetBalance(ctx context.Context) (float64, error) {
	acct, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, classify(err)
	}
	for _, bal := range acct.Balances {
		if bal.Asset != "USDT" {
			continue
		}
		free := parseFloat(bal.Free)
		locked := parseFloat(bal.Locked)
		return free + locked, nil
	}
	return 0, nil
}

func (b *Binance) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, classify(err)
	}
	if len(prices) == 0 || prices[0] == nil {
		return 0, fmt.Errorf("binance: no price for %s", symbol)
	}
	return parseFloat(prices[0].Price), nil
}

func (b *Binance) GetPriceHistory(ctx context.Context, symbol string, limit int) ([]Candle, error) {
	if limit <= 0 {
		limit = 200
	}
	kls, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(binanceHistoryInterval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, Candle{
			Time:  time.UnixMilli(kl.CloseTime).UTC(),
			Close: parseFloat(kl.Close),
		})
	}
	return out, nil
}

func (b *Binance) GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	info, err := b.client.NewExchangeInfoService().Symbols(symbol).Do(ctx)
	if err != nil {
		return SymbolInfo{}, classify(err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		out := SymbolInfo{Symbol: symbol}
		if pf := s.PriceFilter(); pf != nil {
			out.TickSize = parseFloat(pf.TickSize)
		}
		if lf := s.LotSizeFilter(); lf != nil {
			out.StepSize = parseFloat(lf.StepSize)
		}
		if nf := s.NotionalFilter(); nf != nil {
			out.MinNotional = parseFloat(nf.MinNotional)
		}
		return out, nil
	}
	return SymbolInfo{}, fmt.Errorf("binance: symbol %s not found in exchange info", symbol)
}

func (b *Binance) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	svc := b.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(binanceSide(req.Side)).
		Quantity(formatQty(req.Quantity))
	if req.Price > 0 {
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(formatQty(req.Price))
	} else {
		svc = svc.Type(binance.OrderTypeMarket)
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return "", classify(err)
	}
	return strconv.FormatInt(resp.OrderID, 10), nil
}

// SetStopLoss places a STOP_LOSS_LIMIT on the closing side of the position.
func (b *Binance) SetStopLoss(ctx context.Context, symbol string, side Side, quantity, stopPrice float64) (string, error) {
	resp, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binanceSide(side.Opposite())).
		Type(binance.OrderTypeStopLossLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(formatQty(quantity)).
		Price(formatQty(stopPrice)).
		StopPrice(formatQty(stopPrice)).
		Do(ctx)
	if err != nil {
		return "", classify(err)
	}
	return strconv.FormatInt(resp.OrderID, 10), nil
}

func (b *Binance) SetTakeProfit(ctx context.Context, symbol string, side Side, quantity, targetPrice float64) (string, error) {
	resp, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binanceSide(side.Opposite())).
		Type(binance.OrderTypeTakeProfitLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(formatQty(quantity)).
		Price(formatQty(targetPrice)).
		StopPrice(formatQty(targetPrice)).
		Do(ctx)
	if err != nil {
		return "", classify(err)
	}
	return strconv.FormatInt(resp.OrderID, 10), nil
}

func (b *Binance) GetOpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	orders, err := b.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if o == nil {
			continue
		}
		side := SideBuy
		if o.Side == binance.SideTypeSell {
			side = SideSell
		}
		out = append(out, Order{
			ID:       strconv.FormatInt(o.OrderID, 10),
			Symbol:   o.Symbol,
			Side:     side,
			Type:     string(o.Type),
			Quantity: parseFloat(o.OrigQuantity),
			Price:    parseFloat(o.Price),
			Status:   mapStatus(o.Status),
		})
	}
	return out, nil
}

func (b *Binance) GetOrderStatus(ctx context.Context, symbol, orderID string) (OrderStatus, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return OrderStatusUnknown, fmt.Errorf("binance: bad order id %q: %w", orderID, err)
	}
	order, err := b.client.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return OrderStatusUnknown, classify(err)
	}
	return mapStatus(order.Status), nil
}

func (b *Binance) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("binance: bad order id %q: %w", orderID, err)
	}
	_, err = b.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return classify(err)
	}
	return nil
}

// ClosePosition unwinds the position with a market order on the closing side.
func (b *Binance) ClosePosition(ctx context.Context, symbol string, side Side, quantity float64) (float64, error) {
	resp, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binanceSide(side.Opposite())).
		Type(binance.OrderTypeMarket).
		Quantity(formatQty(quantity)).
		Do(ctx)
	if err != nil {
		return 0, classify(err)
	}
	if len(resp.Fills) > 0 && resp.Fills[0] != nil {
		return parseFloat(resp.Fills[0].Price), nil
	}
	return b.GetCurrentPrice(ctx, symbol)
}

func binanceSide(s Side) binance.SideType {
	if s == SideSell {
		return binance.SideTypeSell
	}
	return binance.SideTypeBuy
}

func mapStatus(s binance.OrderStatusType) OrderStatus {
	switch s {
	case binance.OrderStatusTypeNew:
		return OrderStatusNew
	case binance.OrderStatusTypeFilled:
		return OrderStatusFilled
	case binance.OrderStatusTypePartiallyFilled:
		return OrderStatusPartial
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired:
		return OrderStatusCanceled
	case binance.OrderStatusTypeRejected:
		return OrderStatusRejected
	default:
		return OrderStatusUnknown
	}
}

// Binance error codes that indicate a retry-safe condition: rate limiting,
// timestamp drift, transient backend disconnects.
var binanceTransientCodes = map[int64]bool{
	-1001: true,
	-1003: true,
	-1021: true,
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if binanceTransientCodes[apiErr.Code] {
			return Transient(err)
		}
		return err
	}
	// Non-API failures are connectivity problems.
	return Transient(err)
}

func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}

func formatQty(v float64) string {
	return decimal.NewFromFloat(v).String()
}
