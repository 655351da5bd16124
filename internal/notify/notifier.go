// Package notify carries structured engine events to external sinks.
// Rendering beyond a plain-text summary is the sink's concern.
package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type EventType string

const (
	EventTradeOpened        EventType = "trade_opened"
	EventTradeClosed        EventType = "trade_closed"
	EventManualIntervention EventType = "manual_intervention_required"
	EventBreakerActivated   EventType = "circuit_breaker_activated"
)

type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// Event is one structured notification. Fields carries the numeric payload
// (prices, quantities, thresholds) keyed by name.
type Event struct {
	Type      EventType
	AccountID string
	Symbol    string
	Priority  Priority
	Fields    map[string]any
	At        time.Time
}

// Summary renders a stable one-line text form for text-only sinks.
func (e Event) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] account=%s", e.Type, e.AccountID)
	if e.Symbol != "" {
		fmt.Fprintf(&b, " symbol=%s", e.Symbol)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	return b.String()
}

// Notifier is implemented by every sink.
type Notifier interface {
	Publish(event Event) error
}

// Multi fans one event out to several sinks; the first error is returned
// after every sink has been attempted.
type Multi []Notifier

func (m Multi) Publish(event Event) error {
	var firstErr error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Publish(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
