package model

import "time"

// EventType tags a hijack event with the rule that produced it.
type EventType string

const (
	EventEntry        EventType = "ENTRY"
	EventTakeProfit   EventType = "TAKE_PROFIT"
	EventStopLoss     EventType = "STOP_LOSS"
	EventMomentumDied EventType = "MOMENTUM_DIED"
	EventTrailingStop EventType = "TRAILING_STOP"
)

// HijackEvent is an append-only audit record: one row per entry and one
// per exit. Archival is best-effort and never blocks a trading decision.
type HijackEvent struct {
	Ticker         string    `json:"ticker"`
	Price          float64   `json:"price"`
	Force          float64   `json:"force"`
	NarrativeScore float64   `json:"narrative_score"`
	Type           EventType `json:"event_type"`
	RecordedAt     time.Time `json:"recorded_at"`
}
