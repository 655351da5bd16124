// Package circuit provides a minimal closed/open/half-open failure breaker.
// It is used to detect sustained venue unavailability: consecutive failures
// trip the breaker, and it only re-closes after a cool-down plus one probe
// success.
package circuit

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	threshold   int
	cooldown    time.Duration
	lastFailure time.Time
	name        string
	onChange    func(name string, from, to State)
	now         func() time.Time
}

func New(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	return &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		state:     StateClosed,
		now:       time.Now,
	}
}

// OnStateChange registers a callback fired on every transition.
func (b *Breaker) OnStateChange(fn func(name string, from, to State)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// Allow reports whether a call may proceed. An open breaker admits a single
// probe once the cool-down has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.lastFailure) > b.cooldown {
			b.transition(StateHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateHalfOpen:
		b.transition(StateClosed)
		b.failures = 0
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
	switch b.state {
	case StateClosed:
		if b.failures >= b.threshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

// Open reports whether the breaker is currently tripped.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateOpen
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.onChange != nil {
		go b.onChange(b.name, from, to)
	}
}
