package fusion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"hijackwatch/internal/model"
)

// httpSource is the shared machinery for the HTTP-backed sources: a bounded
// client, a client-side rate limiter, and a base URL. Every call is bounded
// by the client timeout so a hung provider cannot stall the scan loop.
type httpSource struct {
	name    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func newHTTPSource(name, baseURL string, rps float64) httpSource {
	return httpSource{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// getJSON fetches url and decodes the body into out, honoring the limiter.
func (h *httpSource) getJSON(ctx context.Context, url string, out any) error {
	if !h.limiter.Allow() {
		return fmt.Errorf("%s: client-side rate limit", h.name)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", h.name, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: fetch: %w", h.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", h.name, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", h.name, err)
	}
	return nil
}

// ── Fear & Greed ──

// FearGreedSource reads the crypto Fear & Greed index and votes contrarian:
// extreme fear (<=25) is bullish, extreme greed (>=75) is bearish.
type FearGreedSource struct {
	httpSource
}

// NewFearGreedSource creates the source. baseURL defaults to the public
// alternative.me endpoint when empty.
func NewFearGreedSource(baseURL string) *FearGreedSource {
	if baseURL == "" {
		baseURL = "https://api.alternative.me"
	}
	return &FearGreedSource{newHTTPSource("fear_greed", baseURL, 0.5)}
}

func (s *FearGreedSource) Name() string { return s.name }

func (s *FearGreedSource) Vote(ctx context.Context, ticker string) (Vote, error) {
	// Index is market-wide; ticker is ignored.
	var body struct {
		Data []struct {
			Value string `json:"value"`
		} `json:"data"`
	}
	if err := s.getJSON(ctx, s.baseURL+"/fng/", &body); err != nil {
		return Vote{}, err
	}
	if len(body.Data) == 0 {
		return Vote{}, fmt.Errorf("fear_greed: empty response")
	}
	v, err := strconv.Atoi(body.Data[0].Value)
	if err != nil {
		return Vote{}, fmt.Errorf("fear_greed: bad value %q", body.Data[0].Value)
	}
	return classifyFearGreed(v), nil
}

func classifyFearGreed(index int) Vote {
	display := "Fear & Greed " + strconv.Itoa(index)
	switch {
	case index <= 25:
		return Vote{Polarity: model.Bullish, Display: display} // contrarian
	case index >= 75:
		return Vote{Polarity: model.Bearish, Display: display} // contrarian
	default:
		return Vote{Polarity: model.Neutral, Display: display}
	}
}

// ── Social sentiment ──

// SocialSource reads a per-ticker social sentiment score in [-1, 1] from a
// sentiment provider. Scores above +0.2 vote bullish, below -0.2 bearish.
type SocialSource struct {
	httpSource
}

func NewSocialSource(baseURL string) *SocialSource {
	return &SocialSource{newHTTPSource("social", baseURL, 1)}
}

func (s *SocialSource) Name() string { return s.name }

func (s *SocialSource) Vote(ctx context.Context, ticker string) (Vote, error) {
	var body struct {
		Score float64 `json:"score"`
	}
	if err := s.getJSON(ctx, s.baseURL+"/sentiment/"+ticker, &body); err != nil {
		return Vote{}, err
	}
	return classifySocial(body.Score), nil
}

func classifySocial(score float64) Vote {
	display := "social " + strconv.FormatFloat(score, 'f', 2, 64)
	switch {
	case score >= 0.2:
		return Vote{Polarity: model.Bullish, Display: display}
	case score <= -0.2:
		return Vote{Polarity: model.Bearish, Display: display}
	default:
		return Vote{Polarity: model.Neutral, Display: display}
	}
}

// ── Options flow ──

// OptionsFlowSource reads the put/call volume ratio for a ticker. Heavy call
// buying (ratio <= 0.8) votes bullish, heavy put buying (>= 1.2) bearish.
// Only meaningful for tickers with liquid options markets; the engine gates
// it to BTC/ETH.
type OptionsFlowSource struct {
	httpSource
}

func NewOptionsFlowSource(baseURL string) *OptionsFlowSource {
	return &OptionsFlowSource{newHTTPSource("options_flow", baseURL, 1)}
}

func (s *OptionsFlowSource) Name() string { return s.name }

func (s *OptionsFlowSource) Vote(ctx context.Context, ticker string) (Vote, error) {
	var body struct {
		PutCallRatio float64 `json:"put_call_ratio"`
	}
	if err := s.getJSON(ctx, s.baseURL+"/options/"+ticker, &body); err != nil {
		return Vote{}, err
	}
	return classifyPutCall(body.PutCallRatio), nil
}

func classifyPutCall(ratio float64) Vote {
	display := "put/call " + strconv.FormatFloat(ratio, 'f', 2, 64)
	switch {
	case ratio <= 0.8:
		return Vote{Polarity: model.Bullish, Display: display}
	case ratio >= 1.2:
		return Vote{Polarity: model.Bearish, Display: display}
	default:
		return Vote{Polarity: model.Neutral, Display: display}
	}
}

// ── News headlines ──

// HeadlineSource fetches recent per-ticker headlines from the signal API.
// Not a voting Source: it feeds KeywordScorer, which the trader consults at
// entry time when the narrative gate is enabled.
type HeadlineSource struct {
	httpSource
}

func NewHeadlineSource(baseURL string) *HeadlineSource {
	return &HeadlineSource{newHTTPSource("news", baseURL, 1)}
}

func (s *HeadlineSource) Headlines(ctx context.Context, ticker string) ([]string, error) {
	var body struct {
		Headlines []string `json:"headlines"`
	}
	if err := s.getJSON(ctx, s.baseURL+"/news/"+ticker, &body); err != nil {
		return nil, err
	}
	return body.Headlines, nil
}

// ── On-chain health ──

// OnChainSource reads a composite on-chain health score in [0, 100]
// (active addresses, netflows, staking ratio). >=60 votes bullish,
// <=40 bearish.
type OnChainSource struct {
	httpSource
}

func NewOnChainSource(baseURL string) *OnChainSource {
	return &OnChainSource{newHTTPSource("on_chain", baseURL, 1)}
}

func (s *OnChainSource) Name() string { return s.name }

func (s *OnChainSource) Vote(ctx context.Context, ticker string) (Vote, error) {
	var body struct {
		HealthScore float64 `json:"health_score"`
	}
	if err := s.getJSON(ctx, s.baseURL+"/onchain/"+ticker, &body); err != nil {
		return Vote{}, err
	}
	return classifyOnChain(body.HealthScore), nil
}

func classifyOnChain(score float64) Vote {
	display := "on-chain " + strconv.FormatFloat(score, 'f', 0, 64)
	switch {
	case score >= 60:
		return Vote{Polarity: model.Bullish, Display: display}
	case score <= 40:
		return Vote{Polarity: model.Bearish, Display: display}
	default:
		return Vote{Polarity: model.Neutral, Display: display}
	}
}
