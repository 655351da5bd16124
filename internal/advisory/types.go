// Package advisory calls the external reasoning oracle for BUY/SELL/WAIT
// recommendations and validates everything it returns. Oracle output is
// untrusted input: nothing reaches execution without passing the parser.
package advisory

import (
	"strings"

	"unitrader/internal/store"
)

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionWait Action = "WAIT"
)

func ParseAction(raw string) (Action, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY":
		return ActionBuy, true
	case "SELL":
		return ActionSell, true
	case "WAIT":
		return ActionWait, true
	default:
		return "", false
	}
}

// Recommendation is the validated oracle verdict.
type Recommendation struct {
	Action     Action
	Confidence int // 0-100
	Rationale  string
}

// Wait builds the safe fallback recommendation.
func Wait(reason string) Recommendation {
	if reason == "" {
		reason = "advisory unavailable"
	}
	return Recommendation{Action: ActionWait, Confidence: 0, Rationale: reason}
}

// AccountContext is the account-side data serialized into the oracle prompt.
type AccountContext struct {
	AccountID      string
	Symbol         string
	Venue          string
	Balance        float64
	OpenTrades     int
	History        store.TradeStats
	MaxPositionPct float64
	DailyLossPct   float64
}
