package model

import "time"

// PositionStatus is the lifecycle state of a paper position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED" // terminal
)

// Position is a simulated (paper) trade. Created OPEN, transitioned to
// CLOSED exactly once with exit price / profit / closed-at written together.
// Never deleted, never reopened — a re-entry is a new row.
type Position struct {
	ID           string         `json:"id"`
	Ticker       string         `json:"ticker"`
	EntryPrice   float64        `json:"entry_price"`
	Quantity     float64        `json:"quantity"` // tradeSizeUSD / entryPrice at entry
	Status       PositionStatus `json:"status"`
	ExitPrice    float64        `json:"exit_price,omitempty"`
	Profit       float64        `json:"profit,omitempty"`
	ForceAtEntry float64        `json:"force_at_entry"`
	OpenedAt     time.Time      `json:"opened_at"`
	ClosedAt     time.Time      `json:"closed_at,omitempty"`
}

// PnLPercent returns the unrealized P&L percentage at the given price.
func (p *Position) PnLPercent(currentPrice float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (currentPrice - p.EntryPrice) / p.EntryPrice * 100
}
