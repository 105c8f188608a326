// Package force computes the hijack-force metric: the absolute second
// derivative of a ticker's value series scaled by traded volume. It owns
// the per-ticker trailing observation windows and produces the ranked
// leaderboard consumed by the fusion engine and the autotrader.
package force

import (
	"context"
	"sort"
	"sync"
	"time"

	"hijackwatch/internal/model"
)

const (
	// DefaultMaxPoints bounds each ticker's trailing window.
	DefaultMaxPoints = 50

	// DefaultMaxAge drops observations older than this at read time.
	DefaultMaxAge = 3 * time.Minute
)

// WindowStore keeps a bounded trailing window of observations per ticker.
// Written by the observation bus consumer, read by the scan loop.
type WindowStore struct {
	mu        sync.RWMutex
	windows   map[string][]model.Observation
	maxPoints int
	maxAge    time.Duration
}

// NewWindowStore creates a window store. maxPoints <= 0 and maxAge <= 0
// fall back to the defaults.
func NewWindowStore(maxPoints int, maxAge time.Duration) *WindowStore {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &WindowStore{
		windows:   make(map[string][]model.Observation, 64),
		maxPoints: maxPoints,
		maxAge:    maxAge,
	}
}

// Add appends an observation to its ticker's window, evicting the oldest
// point once the window is full.
func (ws *WindowStore) Add(o model.Observation) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	w := ws.windows[o.Ticker]
	w = append(w, o)
	if len(w) > ws.maxPoints {
		w = w[len(w)-ws.maxPoints:]
	}
	ws.windows[o.Ticker] = w
}

// Window returns the ticker's trailing window filtered to maxAge, oldest
// first. Returns nil for unknown tickers.
func (ws *WindowStore) Window(ticker string, now time.Time) []model.Observation {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	w := ws.windows[ticker]
	if len(w) == 0 {
		return nil
	}
	cutoff := now.Add(-ws.maxAge)
	start := 0
	for start < len(w) && w[start].TS.Before(cutoff) {
		start++
	}
	if start == len(w) {
		return nil
	}
	out := make([]model.Observation, len(w)-start)
	copy(out, w[start:])
	return out
}

// Tickers returns all tickers with at least one observation, sorted for
// deterministic iteration.
func (ws *WindowStore) Tickers() []string {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	out := make([]string, 0, len(ws.windows))
	for t := range ws.windows {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// LatestValue returns the most recent value for a ticker, or 0 if unseen.
func (ws *WindowStore) LatestValue(ticker string) float64 {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	w := ws.windows[ticker]
	if len(w) == 0 {
		return 0
	}
	return w[len(w)-1].Value
}

// Run consumes observations from obsCh into the store. Blocks until ctx is
// cancelled or obsCh is closed.
func (ws *WindowStore) Run(ctx context.Context, obsCh <-chan model.Observation) {
	for {
		select {
		case <-ctx.Done():
			return
		case o, ok := <-obsCh:
			if !ok {
				return
			}
			ws.Add(o)
		}
	}
}
