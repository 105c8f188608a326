package feed

import (
	"context"
	"log"
	"math/rand"
	"time"

	"hijackwatch/internal/model"
)

// SimFeed generates random-walk trades for staging mode, so the whole
// pipeline runs without exchange connectivity. Occasionally injects a burst
// of accelerating prices to produce realistic hijack candidates.
type SimFeed struct {
	tickers  map[string]float64 // ticker → current simulated price
	interval time.Duration
	rng      *rand.Rand

	burstLeft map[string]int // remaining burst ticks per ticker
}

// simStartPrices give the majors plausible levels; unknown tickers start
// at 100.
var simStartPrices = map[string]float64{
	"BTC": 65000,
	"ETH": 3400,
	"SOL": 150,
}

// NewSim creates a simulated feed emitting one trade per ticker per interval.
// interval <= 0 defaults to 100ms.
func NewSim(tickers []string, interval time.Duration) *SimFeed {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	prices := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		p := simStartPrices[t]
		if p == 0 {
			p = 100
		}
		prices[t] = p
	}
	return &SimFeed{
		tickers:   prices,
		interval:  interval,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		burstLeft: make(map[string]int),
	}
}

// Start emits trades into tradeCh until ctx is cancelled.
func (s *SimFeed) Start(ctx context.Context, tradeCh chan<- model.Trade) error {
	log.Printf("[sim] generating trades for %d tickers every %s", len(s.tickers), s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for name := range s.tickers {
				trade := s.nextTrade(name)
				select {
				case tradeCh <- trade:
				default:
					log.Println("[sim] tradeCh full, dropping trade")
				}
			}
		}
	}
}

func (s *SimFeed) nextTrade(name string) model.Trade {
	price := s.tickers[name]

	if s.burstLeft[name] > 0 {
		// Burst: each tick gains more than the last, producing curvature
		// the force engine can pick up.
		step := float64(6-s.burstLeft[name]) * 0.0015
		price *= 1 + step
		s.burstLeft[name]--
	} else {
		// Random walk ±0.1% per tick.
		pct := (s.rng.Float64()*0.2 - 0.1) / 100.0
		price *= 1 + pct
		if s.rng.Intn(600) == 0 {
			s.burstLeft[name] = 5
		}
	}
	if price < 0.01 {
		price = 0.01
	}
	s.tickers[name] = price

	return model.Trade{
		Ticker: name,
		Price:  price,
		Qty:    s.rng.Float64()*10 + 0.1,
		TS:     time.Now().UTC(),
	}
}
