package fusion

import (
	"context"
	"log"
	"math"
	"strconv"

	"hijackwatch/internal/force"
	"hijackwatch/internal/model"
)

// minContributors guards against trading on a thin vote: fewer than 3
// sources answering this cycle means no signal at all.
const minContributors = 3

// optionsTickers is the set of tickers with a liquid enough options market
// for the options-flow source to mean anything.
var optionsTickers = map[string]bool{"BTC": true, "ETH": true}

// Engine fuses the force reading with auxiliary source votes into a
// TradeSignal. Pure computation over supplied inputs; callers decide
// whether to act and whether to archive.
type Engine struct {
	weights   Weights
	predictor Predictor

	fearGreed Source
	social    Source
	options   Source
	onChain   Source

	// OnSourceFailure is an optional metrics hook, called with the source
	// name when its vote is omitted due to an error.
	OnSourceFailure func(source string)
}

// NewEngine creates a fusion engine. Any Source may be nil, in which case
// it never contributes a vote.
func NewEngine(weights Weights, predictor Predictor, fearGreed, social, options, onChain Source) *Engine {
	return &Engine{
		weights:   weights,
		predictor: predictor,
		fearGreed: fearGreed,
		social:    social,
		options:   options,
		onChain:   onChain,
	}
}

// weightedVote is one collected contribution before tallying.
type weightedVote struct {
	source string
	vote   Vote
	weight float64
}

// Fuse produces a trade signal for the ticker behind the force reading, or
// nil when fewer than minContributors sources answered (or the answering
// sources were all neutral).
func (e *Engine) Fuse(ctx context.Context, reading model.ForceReading, window []model.Observation) *model.TradeSignal {
	var pred Prediction
	if e.predictor != nil {
		pred = e.predictor.Predict(window)
	}
	primary := pred.Direction != PredictNeutral && pred.Direction != "" &&
		pred.Confidence >= e.weights.ConfidenceFloor

	votes := make([]weightedVote, 0, 5)

	if primary {
		votes = append(votes, weightedVote{
			source: "prediction",
			vote:   predictionVote(pred),
			weight: e.weights.Prediction,
		})
		e.collect(ctx, &votes, "fear_greed", e.fearGreed, reading.Ticker, e.weights.FearGreed)
		e.collect(ctx, &votes, "social", e.social, reading.Ticker, e.weights.Social)
		if optionsTickers[reading.Ticker] {
			e.collect(ctx, &votes, "options_flow", e.options, reading.Ticker, e.weights.Options)
		}
		e.collect(ctx, &votes, "on_chain", e.onChain, reading.Ticker, e.weights.OnChain)
	} else {
		votes = append(votes, weightedVote{
			source: "force",
			vote:   forceVote(reading, window),
			weight: e.weights.FallbackForce,
		})
		e.collect(ctx, &votes, "fear_greed", e.fearGreed, reading.Ticker, e.weights.FallbackFearGreed)
		e.collect(ctx, &votes, "social", e.social, reading.Ticker, e.weights.FallbackSocial)
		e.collect(ctx, &votes, "on_chain", e.onChain, reading.Ticker, e.weights.FallbackOnChain)
	}

	if len(votes) < minContributors {
		return nil
	}

	var bull, bear float64
	sources := make([]model.SignalSource, 0, len(votes))
	for _, v := range votes {
		switch v.vote.Polarity {
		case model.Bullish:
			bull += v.weight
		case model.Bearish:
			bear += v.weight
		}
		sources = append(sources, model.SignalSource{
			Source:   v.source,
			Polarity: v.vote.Polarity,
			Display:  v.vote.Display,
			Weight:   v.weight,
		})
	}

	// All contributors neutral: nothing to align on.
	total := bull + bear
	if total == 0 {
		return nil
	}

	dominant := math.Max(bull, bear)
	alignment := int(math.Round(dominant / total * 100))

	direction := model.Short
	if bull > bear {
		direction = model.Long
	}

	confidence := float64(alignment)
	if primary {
		confidence = pred.Confidence
	}

	return &model.TradeSignal{
		Ticker:         reading.Ticker,
		Direction:      direction,
		Confidence:     confidence,
		AlignmentScore: alignment,
		Sources:        sources,
		Price:          reading.LatestValue,
		TS:             reading.TS,
	}
}

// collect asks a source for its vote and appends it. Errors omit the source
// from this cycle's vote; best-effort aggregation over unreliable data.
func (e *Engine) collect(ctx context.Context, votes *[]weightedVote, name string, s Source, ticker string, weight float64) {
	if s == nil || weight <= 0 {
		return
	}
	v, err := s.Vote(ctx, ticker)
	if err != nil {
		log.Printf("[fusion] source %s unavailable for %s: %v", name, ticker, err)
		if e.OnSourceFailure != nil {
			e.OnSourceFailure(name)
		}
		return
	}
	*votes = append(*votes, weightedVote{source: name, vote: v, weight: weight})
}

func predictionVote(p Prediction) Vote {
	switch p.Direction {
	case PredictUp:
		return Vote{Polarity: model.Bullish, Display: "prediction UP"}
	case PredictDown:
		return Vote{Polarity: model.Bearish, Display: "prediction DOWN"}
	default:
		return Vote{Polarity: model.Neutral, Display: "prediction NEUTRAL"}
	}
}

// forceVote derives the force reading's polarity from the sign of the
// latest acceleration: rising value series votes bullish, falling bearish.
func forceVote(reading model.ForceReading, window []model.Observation) Vote {
	values := make([]float64, len(window))
	for i, o := range window {
		values[i] = o.Value
	}
	accels := force.Accelerations(values)
	pol := model.Neutral
	if len(accels) > 0 {
		switch last := accels[len(accels)-1]; {
		case last > 0:
			pol = model.Bullish
		case last < 0:
			pol = model.Bearish
		}
	}
	return Vote{Polarity: pol, Display: "force " + trimFloat(reading.HijackForce)}
}

// trimFloat renders a force value with 4 decimals, enough for display.
func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}
