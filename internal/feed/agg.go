package feed

import (
	"context"
	"log"
	"sync"
	"time"

	"hijackwatch/internal/model"
)

// obsState holds the in-progress observation for one ticker in the current
// second bucket.
type obsState struct {
	bucket int64 // Unix second of this bucket
	obs    model.Observation
}

// Aggregator collapses a stream of raw trades into one observation per
// ticker per second: value is the last trade price in the bucket, volume is
// the summed quantity. Runs in a single goroutine and emits finalized
// observations when the second rolls over.
type Aggregator struct {
	mu     sync.Mutex
	states map[string]*obsState // key = ticker

	flushInterval time.Duration
	now           func() time.Time

	// Metrics hooks (optional, set externally)
	OnDroppedTrade func()
	OnObservation  func()
}

// NewAggregator creates an aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		states:        make(map[string]*obsState),
		flushInterval: 100 * time.Millisecond, // bucket rollover check frequency
		now:           time.Now,
	}
}

// Run consumes trades from tradeCh, aggregates them into per-second
// observations, and sends finalized observations to obsCh. Blocks until ctx
// is cancelled or tradeCh is closed.
func (a *Aggregator) Run(ctx context.Context, tradeCh <-chan model.Trade, obsCh chan<- model.Observation) {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.flushAll(obsCh)
			return

		case trade, ok := <-tradeCh:
			if !ok {
				a.flushAll(obsCh)
				return
			}
			a.processTrade(trade, obsCh)

		case <-ticker.C:
			a.flushOld(obsCh)
		}
	}
}

// processTrade incorporates a single trade into the bucket state.
func (a *Aggregator) processTrade(trade model.Trade, obsCh chan<- model.Observation) {
	bucket := trade.TS.Unix()

	a.mu.Lock()
	state, exists := a.states[trade.Ticker]

	if exists && bucket < state.bucket {
		// Late trade, belongs to an already-emitted bucket.
		a.mu.Unlock()
		if a.OnDroppedTrade != nil {
			a.OnDroppedTrade()
		}
		return
	}

	if exists && bucket > state.bucket {
		// New second: finalize the old bucket first.
		a.emit(state, obsCh)
		delete(a.states, trade.Ticker)
		exists = false
	}

	if !exists {
		a.states[trade.Ticker] = &obsState{
			bucket: bucket,
			obs: model.Observation{
				Ticker: trade.Ticker,
				Value:  trade.Price,
				Volume: trade.Qty,
				TS:     time.Unix(bucket, 0).UTC(),
			},
		}
		a.mu.Unlock()
		return
	}

	// Same bucket: last price wins, volume accumulates.
	state.obs.Value = trade.Price
	state.obs.Volume += trade.Qty
	a.mu.Unlock()
}

// flushOld emits observations for any bucket strictly in the past.
func (a *Aggregator) flushOld(obsCh chan<- model.Observation) {
	now := a.now().Unix()

	a.mu.Lock()
	defer a.mu.Unlock()

	for key, state := range a.states {
		if state.bucket < now {
			a.emit(state, obsCh)
			delete(a.states, key)
		}
	}
}

// flushAll emits all open buckets regardless of age.
func (a *Aggregator) flushAll(obsCh chan<- model.Observation) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, state := range a.states {
		a.emit(state, obsCh)
		delete(a.states, key)
	}
}

// emit sends a finalized observation. Non-blocking to avoid deadlocks.
func (a *Aggregator) emit(state *obsState, obsCh chan<- model.Observation) {
	select {
	case obsCh <- state.obs:
		if a.OnObservation != nil {
			a.OnObservation()
		}
	default:
		log.Printf("[agg] obsCh full, dropping observation %s ts=%v", state.obs.Ticker, state.obs.TS)
	}
}
