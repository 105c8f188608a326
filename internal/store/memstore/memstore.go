// Package memstore is an in-memory PositionStore and EventWriter used by
// the replay binary and by tests. Same semantics as the SQLite store,
// including the only-if-OPEN close guard, without durability.
package memstore

import (
	"context"
	"sync"
	"time"

	"hijackwatch/internal/model"
)

// Store holds positions and events in memory. Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	positions []model.Position
	byID      map[string]int
	events    []model.HijackEvent
}

// New creates an empty store.
func New() *Store {
	return &Store{byID: make(map[string]int)}
}

// InsertPosition persists a new OPEN position.
func (s *Store) InsertPosition(ctx context.Context, p model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[p.ID] = len(s.positions)
	s.positions = append(s.positions, p)
	return nil
}

// ClosePosition transitions a position to CLOSED, guarded on it still being
// OPEN.
func (s *Store) ClosePosition(ctx context.Context, id string, exitPrice, profit float64, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[id]
	if !ok || s.positions[idx].Status != model.PositionOpen {
		return model.ErrNotOpen
	}
	p := &s.positions[idx]
	p.Status = model.PositionClosed
	p.ExitPrice = exitPrice
	p.Profit = profit
	p.ClosedAt = closedAt
	return nil
}

// OpenPositions returns all currently OPEN positions.
func (s *Store) OpenPositions(ctx context.Context) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Position
	for _, p := range s.positions {
		if p.Status == model.PositionOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

// OpenPosition returns the OPEN position for a ticker, or nil.
func (s *Store) OpenPosition(ctx context.Context, ticker string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.positions {
		p := s.positions[i]
		if p.Ticker == ticker && p.Status == model.PositionOpen {
			return &p, nil
		}
	}
	return nil, nil
}

// OpenCount returns the number of OPEN positions.
func (s *Store) OpenCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.positions {
		if p.Status == model.PositionOpen {
			n++
		}
	}
	return n, nil
}

// AllPositions returns every position, newest first.
func (s *Store) AllPositions(ctx context.Context, limit int) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Position, 0, len(s.positions))
	for i := len(s.positions) - 1; i >= 0; i-- {
		out = append(out, s.positions[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// WriteEvent appends a hijack event.
func (s *Store) WriteEvent(ctx context.Context, ev model.HijackEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a snapshot of all archived events.
func (s *Store) Events() []model.HijackEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]model.HijackEvent, len(s.events))
	copy(cp, s.events)
	return cp
}
