// cmd/replay — offline replay of archived observations.
//
// Reads per-second observations from the SQLite archive, re-runs the force /
// fusion / trading pipeline against an in-memory position store with a
// simulated clock, and prints the resulting trade statistics. Useful for
// threshold tuning against recorded market data.
//
// Config (env vars):
//
//	SQLITE_PATH    — archive to replay        (default: "data/hijackwatch.db")
//	REPLAY_TICKER  — optional single ticker   (default: all)
//	SCAN_INTERVAL  — simulated scan interval  (default: "10s")
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"hijackwatch/config"
	"hijackwatch/internal/autotrader"
	"hijackwatch/internal/force"
	"hijackwatch/internal/fusion"
	"hijackwatch/internal/model"
	"hijackwatch/internal/ringbuf"
	"hijackwatch/internal/riskctl"
	"hijackwatch/internal/store/memstore"
	sqlitestore "hijackwatch/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	cfg := config.Load()
	replayTicker := os.Getenv("REPLAY_TICKER")

	reader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[replay] open archive: %v", err)
	}
	defer reader.Close()

	observations, err := reader.ReadObservations(replayTicker, time.Time{}, 0)
	if err != nil {
		log.Fatalf("[replay] read observations: %v", err)
	}
	if len(observations) == 0 {
		log.Fatalf("[replay] archive %s holds no observations", cfg.SQLitePath)
	}
	log.Printf("[replay] replaying %d observations from %s", len(observations), cfg.SQLitePath)

	ctx := context.Background()

	// Simulated clock driven by observation timestamps.
	simNow := observations[0].TS
	clock := func() time.Time { return simNow }

	ctl := riskctl.New("", nil)
	mem := memstore.New()
	trader := autotrader.New(ctl, mem, mem, &fusion.StaticNarrative{}, nil)
	trader.SetClock(clock)

	windows := force.NewWindowStore(0, 0)
	engine := fusion.NewEngine(
		fusion.DefaultWeights(),
		fusion.NewMomentumPredictor(5, 20, 14),
		fusion.NewSimSource("fear_greed"),
		fusion.NewSimSource("social"),
		fusion.NewSimSource("options_flow"),
		fusion.NewSimSource("on_chain"),
	)

	// The ring decouples the reader from the scan pump, same as the live
	// pipeline's channel stages.
	ring := ringbuf.New(4096)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, o := range observations {
			for !ring.Push(o) {
				time.Sleep(time.Millisecond)
			}
		}
	}()

	scan := func(now time.Time) {
		riskCfg := ctl.Current()
		readings := force.Leaderboard(windows, riskCfg.AlertForceThreshold, now)
		signals := make(map[string]*model.TradeSignal)
		for _, r := range readings {
			if r.HijackForce < riskCfg.EntryForceThreshold {
				continue
			}
			if sig := engine.Fuse(ctx, r, windows.Window(r.Ticker, now)); sig != nil {
				signals[r.Ticker] = sig
			}
		}
		trader.Scan(ctx, readings, signals)
	}

	nextScan := simNow.Add(cfg.ScanInterval)
	drained := false
	for !drained {
		o, ok := ring.Pop()
		if !ok {
			select {
			case <-done:
				if ring.Len() == 0 {
					drained = true
				}
			default:
				time.Sleep(time.Millisecond)
			}
			continue
		}

		if o.TS.After(simNow) {
			simNow = o.TS
		}
		windows.Add(o)

		for !simNow.Before(nextScan) {
			scan(nextScan)
			nextScan = nextScan.Add(cfg.ScanInterval)
		}
	}

	// Final scan closes out whatever the last window produced.
	scan(simNow)

	stats := autotrader.ComputeStats(mustPositions(ctx, mem))
	out, _ := json.MarshalIndent(stats, "", "  ")
	log.Printf("[replay] done: %d events archived, %d ring overflows", len(mem.Events()), ring.Overflow())
	os.Stdout.Write(append(out, '\n'))
}

func mustPositions(ctx context.Context, mem *memstore.Store) []model.Position {
	positions, err := mem.AllPositions(ctx, 0)
	if err != nil {
		log.Fatalf("[replay] positions: %v", err)
	}
	return positions
}
