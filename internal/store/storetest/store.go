// Package storetest provides an in-memory Store for unit tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"unitrader/internal/store"
)

// Store keeps everything in maps under one mutex. Semantics mirror the
// gorm-backed store closely enough for engine and monitor tests.
type Store struct {
	mu        sync.Mutex
	positions map[string]store.Position
	breakers  map[string]store.BreakerRecord

	CreateErr error
	UpdateErr error
	StatsErr  error
}

func New() *Store {
	return &Store{
		positions: make(map[string]store.Position),
		breakers:  make(map[string]store.BreakerRecord),
	}
}

func (s *Store) CreatePosition(_ context.Context, p *store.Position) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[p.ID] = *p
	return nil
}

func (s *Store) UpdatePosition(_ context.Context, p *store.Position) error {
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[p.ID]; !ok {
		return store.ErrNotFound
	}
	s.positions[p.ID] = *p
	return nil
}

func (s *Store) GetPosition(_ context.Context, id string) (*store.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (s *Store) OpenPositions(_ context.Context, accountID string) ([]store.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Position
	for _, p := range s.positions {
		if p.AccountID == accountID && p.Status == store.PositionOpen {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ClosedSince(_ context.Context, accountID string, since time.Time) ([]store.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Position
	for _, p := range s.positions {
		if p.AccountID == accountID && p.Status == store.PositionClosed && !p.ClosedAt.Before(since) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClosedAt.After(out[j].ClosedAt) })
	return out, nil
}

func (s *Store) CountCreatedSince(_ context.Context, accountID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.positions {
		if p.AccountID == accountID && !p.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) TradeStats(_ context.Context, accountID, symbol, trend string, lookback int) (store.TradeStats, error) {
	if s.StatsErr != nil {
		return store.TradeStats{}, s.StatsErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []store.Position
	for _, p := range s.positions {
		if p.AccountID == accountID && p.Symbol == symbol && p.Trend == trend && p.Status == store.PositionClosed {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ClosedAt.After(matched[j].ClosedAt) })
	if lookback > 0 && len(matched) > lookback {
		matched = matched[:lookback]
	}

	stats := store.TradeStats{Count: len(matched)}
	if stats.Count == 0 {
		return stats, nil
	}
	var wins, winSum, lossSum float64
	var losses int
	for _, p := range matched {
		if p.PnL > 0 {
			wins++
			winSum += p.PnLPercent
		} else {
			losses++
			lossSum += p.PnLPercent
		}
	}
	stats.WinRate = wins / float64(stats.Count) * 100
	if wins > 0 {
		stats.AvgWinPct = winSum / wins
	}
	if losses > 0 {
		stats.AvgLossPct = lossSum / float64(losses)
	}
	return stats, nil
}

func (s *Store) BreakerState(_ context.Context, accountID string) (*store.BreakerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.breakers[accountID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := rec
	return &cp, nil
}

func (s *Store) SaveBreakerState(_ context.Context, rec *store.BreakerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakers[rec.AccountID] = *rec
	return nil
}

func (s *Store) Close() error { return nil }

// Seed inserts a position directly, for test setup.
func (s *Store) Seed(p store.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[p.ID] = p
}
