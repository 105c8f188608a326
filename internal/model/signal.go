package model

import "time"

// Polarity is a single source's directional read on a ticker.
type Polarity string

const (
	Bullish Polarity = "BULLISH"
	Bearish Polarity = "BEARISH"
	Neutral Polarity = "NEUTRAL"
)

// Direction is the fused directional call for a trade.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// SignalSource is one source's weighted vote inside a fused signal.
// Ephemeral: produced fresh per fusion call, only the aggregate is archived.
type SignalSource struct {
	Source   string   `json:"source"`
	Polarity Polarity `json:"signal"`
	Display  string   `json:"value"` // human-readable value, e.g. "Fear & Greed 18"
	Weight   float64  `json:"weight"`
}

// TradeSignal is the fused output of the signal engine for one ticker.
// Immutable once produced; consumed once by the autotrader.
type TradeSignal struct {
	Ticker         string         `json:"ticker"`
	Direction      Direction      `json:"direction"`
	Confidence     float64        `json:"confidence"`      // 0-100
	AlignmentScore int            `json:"alignment_score"` // 0-100
	Sources        []SignalSource `json:"signals"`
	Price          float64        `json:"price"`
	TS             time.Time      `json:"ts"`
}
