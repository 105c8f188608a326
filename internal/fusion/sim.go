package fusion

import (
	"context"
	"hash/fnv"
	"strconv"
	"time"

	"hijackwatch/internal/model"
)

// SimSource is a deterministic stand-in for a paid provider in staging mode.
// The vote is derived from a hash of (source name, ticker, current minute)
// so it is stable within a scan cycle but drifts over time.
type SimSource struct {
	name string
}

// NewSimSource creates a simulated source with the given name.
func NewSimSource(name string) *SimSource {
	return &SimSource{name: name}
}

func (s *SimSource) Name() string { return s.name }

func (s *SimSource) Vote(ctx context.Context, ticker string) (Vote, error) {
	h := fnv.New32a()
	h.Write([]byte(s.name))
	h.Write([]byte(ticker))
	h.Write([]byte(strconv.FormatInt(time.Now().Unix()/60, 10)))
	n := h.Sum32() % 100

	display := "sim " + strconv.Itoa(int(n))
	switch {
	case n < 40:
		return Vote{Polarity: model.Bullish, Display: display}, nil
	case n < 80:
		return Vote{Polarity: model.Bearish, Display: display}, nil
	default:
		return Vote{Polarity: model.Neutral, Display: display}, nil
	}
}

// StaticSource always returns a fixed vote. Test helper.
type StaticSource struct {
	SourceName string
	Result     Vote
	Err        error
}

func (s *StaticSource) Name() string { return s.SourceName }

func (s *StaticSource) Vote(ctx context.Context, ticker string) (Vote, error) {
	if s.Err != nil {
		return Vote{}, s.Err
	}
	return s.Result, nil
}
