package feed

import (
	"context"
	"testing"
	"time"

	"hijackwatch/internal/model"
)

func drainObservations(obsCh chan model.Observation) []model.Observation {
	var out []model.Observation
	for {
		select {
		case o := <-obsCh:
			out = append(out, o)
		default:
			return out
		}
	}
}

func TestAggregatorBasicObservation(t *testing.T) {
	agg := NewAggregator()
	tradeCh := make(chan model.Trade, 100)
	obsCh := make(chan model.Observation, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, tradeCh, obsCh)
		close(done)
	}()

	now := time.Now().UTC().Truncate(time.Second)

	// Three trades in the same second
	tradeCh <- model.Trade{Ticker: "BTC", Price: 50000, Qty: 0.5, TS: now}
	tradeCh <- model.Trade{Ticker: "BTC", Price: 50500, Qty: 1.0, TS: now.Add(200 * time.Millisecond)}
	tradeCh <- model.Trade{Ticker: "BTC", Price: 49800, Qty: 0.25, TS: now.Add(500 * time.Millisecond)}

	// A trade in the next second finalizes the previous bucket
	tradeCh <- model.Trade{Ticker: "BTC", Price: 50100, Qty: 2, TS: now.Add(1 * time.Second)}

	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done

	obs := drainObservations(obsCh)
	if len(obs) < 1 {
		t.Fatalf("expected at least 1 observation, got %d", len(obs))
	}

	o := obs[0]
	if o.Ticker != "BTC" {
		t.Errorf("expected ticker=BTC, got %s", o.Ticker)
	}
	// Last trade price in the bucket wins
	if o.Value != 49800 {
		t.Errorf("expected value=49800, got %v", o.Value)
	}
	if o.Volume != 1.75 {
		t.Errorf("expected volume=1.75, got %v", o.Volume)
	}
	if !o.TS.Equal(now) {
		t.Errorf("expected ts=%v, got %v", now, o.TS)
	}
}

func TestAggregatorMultipleTickers(t *testing.T) {
	agg := NewAggregator()
	tradeCh := make(chan model.Trade, 100)
	obsCh := make(chan model.Observation, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, tradeCh, obsCh)
		close(done)
	}()

	now := time.Now().UTC().Truncate(time.Second)

	tradeCh <- model.Trade{Ticker: "BTC", Price: 50000, Qty: 1, TS: now}
	tradeCh <- model.Trade{Ticker: "ETH", Price: 3000, Qty: 10, TS: now}

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done // cancel flushes all open buckets

	obs := drainObservations(obsCh)
	if len(obs) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(obs))
	}

	byTicker := map[string]model.Observation{}
	for _, o := range obs {
		byTicker[o.Ticker] = o
	}
	if byTicker["BTC"].Value != 50000 || byTicker["ETH"].Value != 3000 {
		t.Errorf("unexpected values: %+v", byTicker)
	}
}

func TestAggregatorDropsLateTrade(t *testing.T) {
	agg := NewAggregator()
	dropped := 0
	agg.OnDroppedTrade = func() { dropped++ }

	obsCh := make(chan model.Observation, 100)
	now := time.Now().UTC().Truncate(time.Second)

	agg.processTrade(model.Trade{Ticker: "BTC", Price: 100, Qty: 1, TS: now}, obsCh)
	// A trade from a previous second arrives after the bucket moved on
	agg.processTrade(model.Trade{Ticker: "BTC", Price: 101, Qty: 1, TS: now.Add(time.Second)}, obsCh)
	agg.processTrade(model.Trade{Ticker: "BTC", Price: 99, Qty: 1, TS: now}, obsCh)

	if dropped != 1 {
		t.Errorf("expected 1 dropped trade, got %d", dropped)
	}
}

func TestParseAggTrade(t *testing.T) {
	trade, err := parseAggTrade(aggTrade{Symbol: "BTCUSDT", Price: "116.5", Qty: "0.25", TradeTS: 1700000000123})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trade.Ticker != "BTC" {
		t.Errorf("expected ticker=BTC, got %s", trade.Ticker)
	}
	if trade.Price != 116.5 || trade.Qty != 0.25 {
		t.Errorf("unexpected trade: %+v", trade)
	}
	if trade.TS.UnixMilli() != 1700000000123 {
		t.Errorf("unexpected ts: %v", trade.TS)
	}

	if _, err := parseAggTrade(aggTrade{Symbol: "", Price: "1", Qty: "1"}); err == nil {
		t.Error("expected error for missing symbol")
	}
	if _, err := parseAggTrade(aggTrade{Symbol: "BTCUSDT", Price: "bogus", Qty: "1"}); err == nil {
		t.Error("expected error for bad price")
	}
}
