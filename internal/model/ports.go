package model

import (
	"context"
	"errors"
	"time"
)

// ErrNotOpen is returned by ClosePosition when the position has already
// been closed (or never existed). Guards double-close races.
var ErrNotOpen = errors.New("position is not open")

// ── Storage Port Interfaces ──
// These interfaces decouple the decision engine from concrete storage
// (SQLite archive, Redis hot state, in-memory replay store).

// ObservationWriter archives raw observations off the hot path.
type ObservationWriter interface {
	// Run reads observations from obsCh and writes them in batches.
	// Blocks until ctx is cancelled or obsCh is closed.
	Run(ctx context.Context, obsCh <-chan Observation)

	// Close releases underlying resources.
	Close() error
}

// ObservationReader reads archived observations for replay.
type ObservationReader interface {
	// ReadObservations returns observations for a ticker after a timestamp,
	// in time order. An empty ticker means all tickers.
	ReadObservations(ticker string, after time.Time, limit int) ([]Observation, error)

	// Close releases underlying resources.
	Close() error
}

// PositionStore is the authoritative store for paper positions.
// Failures here are fatal for the specific entry/exit operation: the caller
// treats the operation as not-executed and retries next cycle.
type PositionStore interface {
	// InsertPosition persists a new OPEN position.
	InsertPosition(ctx context.Context, p Position) error

	// ClosePosition transitions a position to CLOSED, writing exit price,
	// profit, and closed-at together. The update is guarded on the position
	// still being OPEN; returns ErrNotOpen if it is not.
	ClosePosition(ctx context.Context, id string, exitPrice, profit float64, closedAt time.Time) error

	// OpenPositions returns all currently OPEN positions.
	OpenPositions(ctx context.Context) ([]Position, error)

	// OpenPosition returns the OPEN position for a ticker, or nil.
	OpenPosition(ctx context.Context, ticker string) (*Position, error)

	// OpenCount returns the number of OPEN positions.
	OpenCount(ctx context.Context) (int, error)

	// AllPositions returns every position, open and closed, newest first.
	AllPositions(ctx context.Context, limit int) ([]Position, error)
}

// EventWriter archives hijack events. Best-effort: a failed write must not
// roll back or block the trade decision it describes.
type EventWriter interface {
	WriteEvent(ctx context.Context, ev HijackEvent) error
}
