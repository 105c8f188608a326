package model

import "time"

// ForceReading is the per-ticker output of one force scan. Derived state:
// recomputed every cycle from the trailing observation window, never the
// authoritative record of anything.
type ForceReading struct {
	Ticker      string    `json:"ticker"`
	HijackForce float64   `json:"hijack_force"` // |accel| * log10(volume), >= 0
	LatestValue float64   `json:"latest_value"`
	IsHijacking bool      `json:"is_hijacking"` // force above the alert threshold
	TS          time.Time `json:"ts"`
}
