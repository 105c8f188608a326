// Package fusion combines the hijack-force reading with auxiliary market
// signals (fear/greed, social sentiment, options flow, on-chain health and
// a momentum prediction) into a single weighted directional call.
//
// Every auxiliary input sits behind the Source interface so the voting
// algorithm is source-count-agnostic: a source that errors this cycle is
// simply left out of the vote.
package fusion

import (
	"context"

	"hijackwatch/internal/model"
)

// Vote is a single source's read on a ticker.
type Vote struct {
	Polarity model.Polarity
	Display  string // human-readable value for the archived signal
}

// Source is the capability interface all auxiliary signal providers satisfy.
// Vote may fail (timeout, rate limit, malformed response); the engine treats
// a failure as "source unavailable this cycle".
type Source interface {
	Name() string
	Vote(ctx context.Context, ticker string) (Vote, error)
}

// PredictionDirection is the momentum predictor's call.
type PredictionDirection string

const (
	PredictUp      PredictionDirection = "UP"
	PredictDown    PredictionDirection = "DOWN"
	PredictNeutral PredictionDirection = "NEUTRAL"
)

// Prediction is a directional call with a confidence in [0,100].
type Prediction struct {
	Direction  PredictionDirection
	Confidence float64
}

// Predictor produces a directional prediction from a ticker's trailing
// observation window. Pure computation, never fails.
type Predictor interface {
	Predict(window []model.Observation) Prediction
}
