package model

import "time"

// Trade is one raw trade from the exchange feed, before per-second
// aggregation into an Observation.
type Trade struct {
	Ticker string    `json:"ticker"`
	Price  float64   `json:"price"`
	Qty    float64   `json:"qty"`
	TS     time.Time `json:"ts"`
}
