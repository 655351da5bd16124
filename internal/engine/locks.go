package engine

import "sync"

// LockRegistry hands out non-blocking per-account locks. The decision cycle
// and the monitor share one registry so an account is never mutated from two
// goroutines at once; a loser skips its turn instead of queueing.
type LockRegistry struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLockRegistry() *LockRegistry {
	return &LockRegistry{held: make(map[string]bool)}
}

// TryAcquire takes the account's lock if free, reporting whether it did.
func (r *LockRegistry) TryAcquire(accountID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.held[accountID] {
		return false
	}
	r.held[accountID] = true
	return true
}

func (r *LockRegistry) Release(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.held, accountID)
}
