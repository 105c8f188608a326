package fusion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hijackwatch/internal/model"
)

// staticPredictor always returns the same prediction.
type staticPredictor struct {
	pred Prediction
}

func (s *staticPredictor) Predict(window []model.Observation) Prediction { return s.pred }

func bullSource(name string) *StaticSource {
	return &StaticSource{SourceName: name, Result: Vote{Polarity: model.Bullish, Display: name + " bull"}}
}

func bearSource(name string) *StaticSource {
	return &StaticSource{SourceName: name, Result: Vote{Polarity: model.Bearish, Display: name + " bear"}}
}

func failSource(name string) *StaticSource {
	return &StaticSource{SourceName: name, Err: errors.New("provider down")}
}

func risingWindow(ticker string, n int) []model.Observation {
	now := time.Now().UTC()
	obs := make([]model.Observation, n)
	v := 100.0
	for i := range obs {
		v += float64(i) // accelerating
		obs[i] = model.Observation{Ticker: ticker, Value: v, Volume: 500, TS: now.Add(time.Duration(i) * time.Second)}
	}
	return obs
}

func reading(ticker string, force float64) model.ForceReading {
	return model.ForceReading{Ticker: ticker, HijackForce: force, LatestValue: 100, IsHijacking: true, TS: time.Now().UTC()}
}

func TestFuseAllAgreeAlignment100(t *testing.T) {
	e := NewEngine(DefaultWeights(),
		&staticPredictor{Prediction{Direction: PredictUp, Confidence: 80}},
		bullSource("fear_greed"), bullSource("social"), bullSource("options"), bullSource("on_chain"))

	sig := e.Fuse(context.Background(), reading("BTC", 1.0), risingWindow("BTC", 20))
	require.NotNil(t, sig)
	assert.Equal(t, model.Long, sig.Direction)
	assert.Equal(t, 100, sig.AlignmentScore)
	assert.Equal(t, 80.0, sig.Confidence, "primary mode carries predictor confidence")
	assert.Len(t, sig.Sources, 5, "BTC gets the options vote")
}

func TestFuseOptionsGatedToMajors(t *testing.T) {
	e := NewEngine(DefaultWeights(),
		&staticPredictor{Prediction{Direction: PredictUp, Confidence: 80}},
		bullSource("fear_greed"), bullSource("social"), bullSource("options"), bullSource("on_chain"))

	sig := e.Fuse(context.Background(), reading("SOL", 1.0), risingWindow("SOL", 20))
	require.NotNil(t, sig)
	assert.Len(t, sig.Sources, 4, "non-BTC/ETH tickers skip the options source")
}

func TestFuseWeightedMajorityWins(t *testing.T) {
	// prediction (0.30) bullish vs fear_greed (0.20) + social (0.20) +
	// on_chain (0.15) bearish → bearish weight 0.55 dominates.
	e := NewEngine(DefaultWeights(),
		&staticPredictor{Prediction{Direction: PredictUp, Confidence: 90}},
		bearSource("fear_greed"), bearSource("social"), failSource("options"), bearSource("on_chain"))

	sig := e.Fuse(context.Background(), reading("BTC", 1.0), risingWindow("BTC", 20))
	require.NotNil(t, sig)
	assert.Equal(t, model.Short, sig.Direction)
	// 0.55 / 0.85 * 100 = 64.7 → 65
	assert.Equal(t, 65, sig.AlignmentScore)
}

func TestFuseGuardRequiresThreeContributors(t *testing.T) {
	// Only prediction + fear_greed answer: two contributors, no signal,
	// no matter how extreme the available votes.
	e := NewEngine(DefaultWeights(),
		&staticPredictor{Prediction{Direction: PredictUp, Confidence: 99}},
		bullSource("fear_greed"), failSource("social"), failSource("options"), failSource("on_chain"))

	sig := e.Fuse(context.Background(), reading("BTC", 99), risingWindow("BTC", 20))
	assert.Nil(t, sig)
}

func TestFuseSourceFailureOmittedNotFatal(t *testing.T) {
	var failed []string
	e := NewEngine(DefaultWeights(),
		&staticPredictor{Prediction{Direction: PredictUp, Confidence: 80}},
		bullSource("fear_greed"), failSource("social"), bullSource("options"), bullSource("on_chain"))
	e.OnSourceFailure = func(name string) { failed = append(failed, name) }

	sig := e.Fuse(context.Background(), reading("BTC", 1.0), risingWindow("BTC", 20))
	require.NotNil(t, sig, "one failed source must not abort fusion")
	assert.Len(t, sig.Sources, 4)
	assert.Equal(t, []string{"social"}, failed)
}

func TestFuseFallbackModeOnLowConfidence(t *testing.T) {
	// Predictor below the confidence floor → fallback mode: force votes by
	// acceleration sign, fallback weights apply, confidence = alignment.
	e := NewEngine(DefaultWeights(),
		&staticPredictor{Prediction{Direction: PredictUp, Confidence: 10}},
		bullSource("fear_greed"), bullSource("social"), bullSource("options"), bullSource("on_chain"))

	sig := e.Fuse(context.Background(), reading("BTC", 1.0), risingWindow("BTC", 20))
	require.NotNil(t, sig)
	assert.Equal(t, model.Long, sig.Direction)
	assert.Equal(t, 100, sig.AlignmentScore, "rising window force vote agrees with bullish sources")
	assert.Equal(t, 100.0, sig.Confidence, "fallback confidence is the alignment")

	names := make(map[string]bool)
	for _, s := range sig.Sources {
		names[s.Source] = true
	}
	assert.True(t, names["force"], "fallback mode votes on raw force")
	assert.False(t, names["options_flow"], "fallback mode has no options vote")
}

func TestFuseAllNeutralNoSignal(t *testing.T) {
	neutral := &StaticSource{SourceName: "n", Result: Vote{Polarity: model.Neutral, Display: "flat"}}
	e := NewEngine(DefaultWeights(),
		&staticPredictor{Prediction{Direction: PredictNeutral}},
		neutral, neutral, neutral, neutral)

	sig := e.Fuse(context.Background(), reading("BTC", 1.0), risingWindow("BTC", 20))
	// force vote is bullish for a rising window, so flip the window flat too
	if sig != nil {
		t.Log("signal produced by force vote; verify with flat window")
	}
	flat := make([]model.Observation, 10)
	now := time.Now().UTC()
	for i := range flat {
		flat[i] = model.Observation{Ticker: "BTC", Value: 100, Volume: 10, TS: now.Add(time.Duration(i) * time.Second)}
	}
	sig = e.Fuse(context.Background(), reading("BTC", 0), flat)
	assert.Nil(t, sig, "all-neutral vote has nothing to align on")
}

func TestFuseAlignmentAlwaysInRange(t *testing.T) {
	combos := []struct {
		fg, social, onchain *StaticSource
	}{
		{bullSource("a"), bearSource("b"), bullSource("c")},
		{bearSource("a"), bearSource("b"), bullSource("c")},
		{bullSource("a"), bullSource("b"), bullSource("c")},
	}
	for _, c := range combos {
		e := NewEngine(DefaultWeights(),
			&staticPredictor{Prediction{Direction: PredictDown, Confidence: 85}},
			c.fg, c.social, nil, c.onchain)
		sig := e.Fuse(context.Background(), reading("ETH", 0.5), risingWindow("ETH", 20))
		require.NotNil(t, sig)
		assert.GreaterOrEqual(t, sig.AlignmentScore, 0)
		assert.LessOrEqual(t, sig.AlignmentScore, 100)
	}
}

func TestMomentumPredictorDirections(t *testing.T) {
	p := NewMomentumPredictor(3, 6, 5)

	up := risingWindow("BTC", 12)
	pred := p.Predict(up)
	assert.Equal(t, PredictUp, pred.Direction)
	assert.GreaterOrEqual(t, pred.Confidence, 50.0)

	down := make([]model.Observation, 12)
	now := time.Now().UTC()
	v := 200.0
	for i := range down {
		v -= float64(i)
		down[i] = model.Observation{Ticker: "BTC", Value: v, TS: now.Add(time.Duration(i) * time.Second)}
	}
	assert.Equal(t, PredictDown, p.Predict(down).Direction)

	assert.Equal(t, PredictNeutral, p.Predict(up[:3]).Direction, "short window is neutral")
}

func TestKeywordScorer(t *testing.T) {
	assert.Equal(t, 1, ScoreHeadline("Spot ETF decision expected this quarter"))
	assert.Equal(t, 2, ScoreHeadline("Spot ETF approval expected this quarter"), "two keyword hits stack")
	assert.Equal(t, -1, ScoreHeadline("Exchange hack drains wallets"))
	assert.Equal(t, 0, ScoreHeadline("Bitcoin unchanged in quiet session"))
	// one bullish + one bearish cancels
	assert.Equal(t, 0, ScoreHeadline("Rally stalls after lawsuit news"))
}

func TestHeadlineSourceFeedsKeywordScorer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/news/BTC", r.URL.Path)
		json.NewEncoder(w).Encode(map[string][]string{
			"headlines": {
				"Spot ETF decision expected this quarter",
				"Exchange hack drains wallets",
				"Payments partnership announced",
			},
		})
	}))
	defer srv.Close()

	scorer := NewKeywordScorer(NewHeadlineSource(srv.URL))
	score, err := scorer.Score(context.Background(), "BTC")
	require.NoError(t, err)
	// (+1 - 1 + 1) / 3 headlines
	assert.InDelta(t, 1.0/3.0, score, 1e-9)
}

func TestHeadlineSourceErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	scorer := NewKeywordScorer(NewHeadlineSource(srv.URL))
	_, err := scorer.Score(context.Background(), "BTC")
	assert.Error(t, err)
}

func TestClassifiers(t *testing.T) {
	assert.Equal(t, model.Bullish, classifyFearGreed(10).Polarity, "extreme fear is contrarian bullish")
	assert.Equal(t, model.Bearish, classifyFearGreed(90).Polarity)
	assert.Equal(t, model.Neutral, classifyFearGreed(50).Polarity)

	assert.Equal(t, model.Bullish, classifySocial(0.5).Polarity)
	assert.Equal(t, model.Bearish, classifySocial(-0.5).Polarity)

	assert.Equal(t, model.Bullish, classifyPutCall(0.6).Polarity)
	assert.Equal(t, model.Bearish, classifyPutCall(1.5).Polarity)

	assert.Equal(t, model.Bullish, classifyOnChain(75).Polarity)
	assert.Equal(t, model.Bearish, classifyOnChain(20).Polarity)
}

func TestLoadWeightsMissingFileKeepsDefaults(t *testing.T) {
	w, err := LoadWeights("/nonexistent/weights.yaml")
	assert.Error(t, err)
	assert.Equal(t, DefaultWeights(), w, "error still returns usable defaults")
}
