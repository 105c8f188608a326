package fusion

import (
	"context"
	"fmt"
	"strings"
)

// NarrativeScorer produces a bullish/bearish lean for a ticker from recent
// news headlines. Positive means supportive coverage, negative means the
// tape is against the trade. The autotrader's require-narrative gate only
// suppresses entries on a negative score: sparse news (score 0) still
// passes, which avoids false negatives on thinly covered tickers.
type NarrativeScorer interface {
	Score(ctx context.Context, ticker string) (float64, error)
}

// HeadlineFetcher supplies recent headlines for a ticker. Implemented over
// whatever news API is configured; failures bubble up and the caller treats
// the narrative as unavailable this cycle.
type HeadlineFetcher interface {
	Headlines(ctx context.Context, ticker string) ([]string, error)
}

// KeywordScorer scores headlines by keyword polarity: each bullish keyword
// hit counts +1, each bearish hit -1, summed across headlines and
// normalized by headline count.
type KeywordScorer struct {
	fetcher HeadlineFetcher
}

var bullishKeywords = []string{
	"etf", "adoption", "partnership", "upgrade", "rally",
	"institutional", "approval", "integration", "all-time high", "listing",
}

var bearishKeywords = []string{
	"hack", "exploit", "lawsuit", "ban", "sec sues",
	"outage", "rug", "dump", "liquidation", "delisting",
}

// NewKeywordScorer creates a scorer over the given fetcher.
func NewKeywordScorer(fetcher HeadlineFetcher) *KeywordScorer {
	return &KeywordScorer{fetcher: fetcher}
}

// Score returns the normalized keyword score in roughly [-1, 1] scale per
// headline. No headlines yields 0, not an error.
func (k *KeywordScorer) Score(ctx context.Context, ticker string) (float64, error) {
	headlines, err := k.fetcher.Headlines(ctx, ticker)
	if err != nil {
		return 0, fmt.Errorf("narrative: headlines for %s: %w", ticker, err)
	}
	if len(headlines) == 0 {
		return 0, nil
	}

	total := 0
	for _, h := range headlines {
		total += ScoreHeadline(h)
	}
	return float64(total) / float64(len(headlines)), nil
}

// ScoreHeadline counts keyword polarity hits in a single headline.
func ScoreHeadline(headline string) int {
	lower := strings.ToLower(headline)
	score := 0
	for _, kw := range bullishKeywords {
		if strings.Contains(lower, kw) {
			score++
		}
	}
	for _, kw := range bearishKeywords {
		if strings.Contains(lower, kw) {
			score--
		}
	}
	return score
}

// StaticNarrative returns a fixed score. Used in staging mode and tests.
type StaticNarrative struct {
	Value float64
	Err   error
}

func (s *StaticNarrative) Score(ctx context.Context, ticker string) (float64, error) {
	return s.Value, s.Err
}
