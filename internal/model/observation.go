package model

import (
	"encoding/json"
	"time"
)

// Observation is a single market observation for one ticker: the traded
// price (or a proxy score) and the volume traded at that sample.
// Observations are appended in time order per ticker and are the source
// of truth for force computation.
type Observation struct {
	Ticker string    `json:"ticker"`
	Value  float64   `json:"value"`  // price or proxy score
	Volume float64   `json:"volume"` // base-asset volume for the sample
	TS     time.Time `json:"ts"`     // UTC timestamp
}

// JSON returns the observation encoded as JSON. Errors are impossible for
// this shape, so they are swallowed.
func (o Observation) JSON() []byte {
	b, _ := json.Marshal(o)
	return b
}
