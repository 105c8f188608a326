package fusion

import (
	"math"

	"hijackwatch/internal/model"
)

// MomentumPredictor derives a directional call from the trailing window
// using a fast/slow SMA spread confirmed by RSI: the fast average above the
// slow calls UP only when RSI agrees the momentum is real, and vice versa.
type MomentumPredictor struct {
	fastPeriod int
	slowPeriod int
	rsiPeriod  int
}

// NewMomentumPredictor creates a predictor. fastPeriod < slowPeriod
// (reference: 5 and 15 over one-second samples).
func NewMomentumPredictor(fastPeriod, slowPeriod, rsiPeriod int) *MomentumPredictor {
	return &MomentumPredictor{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		rsiPeriod:  rsiPeriod,
	}
}

// Predict returns NEUTRAL with zero confidence when the window is shorter
// than the slow period.
func (m *MomentumPredictor) Predict(window []model.Observation) Prediction {
	if len(window) < m.slowPeriod || m.slowPeriod <= m.fastPeriod {
		return Prediction{Direction: PredictNeutral}
	}

	values := make([]float64, len(window))
	for i, o := range window {
		values[i] = o.Value
	}

	fast := sma(values, m.fastPeriod)
	slow := sma(values, m.slowPeriod)
	rsi := rsiOf(values, m.rsiPeriod)

	// Confidence scales with the relative SMA spread; 0.5% spread maps to
	// the top of the band. Clamped to [50, 95].
	spread := math.Abs(fast-slow) / slow * 100
	confidence := math.Min(50+spread*9000/100, 95)

	switch {
	case fast > slow && rsi >= 55:
		return Prediction{Direction: PredictUp, Confidence: confidence}
	case fast < slow && rsi <= 45:
		return Prediction{Direction: PredictDown, Confidence: confidence}
	default:
		return Prediction{Direction: PredictNeutral}
	}
}

// sma averages the last period values.
func sma(values []float64, period int) float64 {
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// rsiOf computes a simple-average RSI over the last period+1 values.
// Returns 50 (no signal) when the window is too short.
func rsiOf(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 50
	}
	var gain, loss float64
	tail := values[len(values)-period-1:]
	for i := 1; i < len(tail); i++ {
		change := tail[i] - tail[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	if loss == 0 {
		return 100
	}
	rs := gain / loss
	return 100 - (100 / (1 + rs))
}
