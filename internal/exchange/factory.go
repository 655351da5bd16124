package exchange

import (
	"fmt"
	"strings"
	"time"
)

// Config selects and parameterizes a venue backend for one account.
type Config struct {
	Venue        string
	APIKey       string
	APISecret    string
	RESTBaseURL  string
	HTTPTimeout  time.Duration
	PaperBalance float64
}

// New builds the Exchange for the configured venue. The engine never depends
// on a concrete backend, only on this lookup.
func New(cfg Config) (Exchange, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Venue)) {
	case "binance":
		return NewBinance(BinanceConfig{
			APIKey:      cfg.APIKey,
			APISecret:   cfg.APISecret,
			RESTBaseURL: cfg.RESTBaseURL,
			HTTPTimeout: cfg.HTTPTimeout,
		}), nil
	case "paper", "":
		balance := cfg.PaperBalance
		if balance <= 0 {
			balance = 10_000
		}
		return NewPaper(balance), nil
	default:
		return nil, fmt.Errorf("exchange: unsupported venue %q", cfg.Venue)
	}
}
