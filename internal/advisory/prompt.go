package advisory

import (
	"fmt"
	"strings"

	"unitrader/internal/indicator"
)

const systemPrompt = `You are a professional quantitative trading assistant.
Analyse the market data and output one precise trading decision.

RULES YOU MUST FOLLOW:
1. Risk at most 2% of account balance per trade.
2. Every trade MUST have a stop-loss. Never trade without one.
3. Only trade when confidence is 50 or above.
4. When in doubt, output WAIT - preserving capital is always valid.
5. Be concise and logical. No speculation, only data-driven conclusions.

RESPONSE FORMAT (strict JSON, no markdown, no extra text):
{
  "action": "BUY" | "SELL" | "WAIT",
  "confidence": <integer 0-100>,
  "rationale": "<1-2 sentences explaining the decision>"
}`

// buildUserPrompt serializes the indicator bundle and account context into
// the oracle's request shape. Absent indicators are reported as n/a instead
// of fabricated values.
func buildUserPrompt(bundle *indicator.Bundle, actx AccountContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CURRENT MARKET DATA FOR %s on %s:\n\n", actx.Symbol, actx.Venue)
	fmt.Fprintf(&b, "Price:       %.4f\n", bundle.Price)
	fmt.Fprintf(&b, "Trend:       %s\n\n", bundle.Trend)

	b.WriteString("TECHNICAL INDICATORS:\n")
	fmt.Fprintf(&b, "  RSI (14):    %s\n", fmtPtr(bundle.RSI, "%.1f"))
	if m := bundle.MACD; m != nil {
		fmt.Fprintf(&b, "  MACD Line:   %.6f\n", m.Line)
		fmt.Fprintf(&b, "  MACD Signal: %.6f\n", m.Signal)
		fmt.Fprintf(&b, "  MACD Hist:   %.6f\n", m.Histogram)
	} else {
		b.WriteString("  MACD:        n/a\n")
	}
	fmt.Fprintf(&b, "  MA(20):      %s\n", fmtPtr(bundle.MovingAverages.MA20, "%.4f"))
	fmt.Fprintf(&b, "  MA(50):      %s\n", fmtPtr(bundle.MovingAverages.MA50, "%.4f"))
	fmt.Fprintf(&b, "  MA(200):     %s\n", fmtPtr(bundle.MovingAverages.MA200, "%.4f"))

	if lv := bundle.Levels; lv != nil {
		b.WriteString("\nSUPPORT / RESISTANCE:\n")
		fmt.Fprintf(&b, "  Support:     %.4f\n", lv.Support)
		fmt.Fprintf(&b, "  Pivot:       %.4f\n", lv.Pivot)
		fmt.Fprintf(&b, "  Resistance:  %.4f\n", lv.Resistance)
	}

	b.WriteString("\nACCOUNT:\n")
	fmt.Fprintf(&b, "  Balance:       %.2f USD\n", actx.Balance)
	fmt.Fprintf(&b, "  Open Trades:   %d\n", actx.OpenTrades)
	fmt.Fprintf(&b, "  Max Position:  %.1f%% of balance\n", actx.MaxPositionPct)
	fmt.Fprintf(&b, "  Daily Loss Cap: %.1f%%\n", actx.DailyLossPct)

	if actx.History.Count > 0 {
		b.WriteString("\nHISTORY (similar closed trades):\n")
		fmt.Fprintf(&b, "  Trades:      %d\n", actx.History.Count)
		fmt.Fprintf(&b, "  Win Rate:    %.1f%%\n", actx.History.WinRate)
		fmt.Fprintf(&b, "  Avg Win:     %.2f%%\n", actx.History.AvgWinPct)
		fmt.Fprintf(&b, "  Avg Loss:    %.2f%%\n", actx.History.AvgLossPct)
	}

	b.WriteString("\nProvide your trading decision in the required JSON format.\n")
	return b.String()
}

func fmtPtr(v *float64, format string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *v)
}
