package force

import (
	"math"
	"sort"
	"time"

	"hijackwatch/internal/model"
)

// minPoints is the smallest window that yields a second derivative.
const minPoints = 3

// Accelerations returns the central finite-difference second derivative of
// the value series with uniform step h=1:
//
//	accel[i-1] = v[i+1] - 2*v[i] + v[i-1]   for 1 <= i <= n-2
//
// The step is per-sample, not per-wall-clock-second. Downstream thresholds
// were tuned against sample spacing, so this must not be time-normalized.
func Accelerations(values []float64) []float64 {
	if len(values) < minPoints {
		return nil
	}
	accels := make([]float64, 0, len(values)-2)
	for i := 1; i <= len(values)-2; i++ {
		accels = append(accels, values[i+1]-2*values[i]+values[i-1])
	}
	return accels
}

// Compute derives a ForceReading from a time-ordered observation window.
// Returns false when the window has fewer than 3 points: callers skip the
// ticker (data insufficiency is not an error).
//
// force = |currentAccel| * log10(volume), with the volume term floored at 0
// when volume <= 1, so force is always non-negative.
func Compute(window []model.Observation, alertThreshold float64) (model.ForceReading, bool) {
	if len(window) < minPoints {
		return model.ForceReading{}, false
	}

	values := make([]float64, len(window))
	for i, o := range window {
		values[i] = o.Value
	}
	accels := Accelerations(values)
	current := accels[len(accels)-1]

	latest := window[len(window)-1]
	volTerm := 0.0
	if latest.Volume > 1 {
		volTerm = math.Log10(latest.Volume)
	}
	f := math.Abs(current) * volTerm

	return model.ForceReading{
		Ticker:      latest.Ticker,
		HijackForce: f,
		LatestValue: latest.Value,
		IsHijacking: f >= alertThreshold,
		TS:          latest.TS,
	}, true
}

// Leaderboard computes a reading for every tracked ticker and returns them
// sorted descending by force. Tickers with insufficient data are skipped.
func Leaderboard(ws *WindowStore, alertThreshold float64, now time.Time) []model.ForceReading {
	tickers := ws.Tickers()
	readings := make([]model.ForceReading, 0, len(tickers))
	for _, t := range tickers {
		w := ws.Window(t, now)
		if r, ok := Compute(w, alertThreshold); ok {
			readings = append(readings, r)
		}
	}
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].HijackForce > readings[j].HijackForce
	})
	return readings
}
