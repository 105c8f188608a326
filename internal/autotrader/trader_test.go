package autotrader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hijackwatch/internal/force"
	"hijackwatch/internal/fusion"
	"hijackwatch/internal/model"
	"hijackwatch/internal/riskctl"
	"hijackwatch/internal/store/memstore"
)

func newTestTrader(t *testing.T) (*Trader, *memstore.Store, *riskctl.Controller) {
	t.Helper()
	ctl := riskctl.New("", nil)
	store := memstore.New()
	tr := New(ctl, store, store, nil, nil)
	return tr, store, ctl
}

func reading(ticker string, forceVal, price float64) model.ForceReading {
	return model.ForceReading{
		Ticker:      ticker,
		HijackForce: forceVal,
		LatestValue: price,
		IsHijacking: true,
		TS:          time.Now().UTC(),
	}
}

func strongSignal(ticker string, price float64) *model.TradeSignal {
	return &model.TradeSignal{
		Ticker:         ticker,
		Direction:      model.Long,
		Confidence:     90,
		AlignmentScore: 100,
		Price:          price,
		TS:             time.Now().UTC(),
	}
}

func scanOnce(tr *Trader, r model.ForceReading, sig *model.TradeSignal) {
	tr.Scan(context.Background(), []model.ForceReading{r},
		map[string]*model.TradeSignal{r.Ticker: sig})
}

func TestEntryCreatesPosition(t *testing.T) {
	tr, store, _ := newTestTrader(t)

	scanOnce(tr, reading("BTC", 1.0, 100), strongSignal("BTC", 100))

	open, err := store.OpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	p := open[0]
	assert.Equal(t, "BTC", p.Ticker)
	assert.Equal(t, 100.0, p.EntryPrice)
	assert.Equal(t, riskctl.DefaultConfig().TradeSizeUSD/100.0, p.Quantity)
	assert.Equal(t, 1.0, p.ForceAtEntry)
	assert.NotEmpty(t, p.ID)

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventEntry, events[0].Type)
}

func TestAtMostOneOpenPositionPerTicker(t *testing.T) {
	tr, store, ctl := newTestTrader(t)
	// disable cooldown so only the one-open-position rule can stop us
	zero := 0
	_, err := ctl.Update(context.Background(), riskctl.Patch{CooldownMinutes: &zero})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		scanOnce(tr, reading("BTC", 1.0, 100), strongSignal("BTC", 100))
	}

	count, _ := store.OpenCount(context.Background())
	assert.Equal(t, 1, count, "repeated entry attempts must not duplicate the open position")
}

func TestKillSwitchBlocksAllEntries(t *testing.T) {
	tr, store, ctl := newTestTrader(t)
	ctl.Kill(context.Background(), "test")

	// maximally favorable signal: extreme force, perfect alignment
	scanOnce(tr, reading("BTC", 999, 100), strongSignal("BTC", 100))

	count, _ := store.OpenCount(context.Background())
	assert.Equal(t, 0, count, "no entry may execute while the kill switch is on")
}

func TestEntryThresholdGates(t *testing.T) {
	tr, store, _ := newTestTrader(t)

	// force below the 0.08 default entry threshold
	scanOnce(tr, reading("BTC", 0.05, 100), strongSignal("BTC", 100))
	count, _ := store.OpenCount(context.Background())
	assert.Equal(t, 0, count)

	// weak alignment
	weak := strongSignal("ETH", 100)
	weak.AlignmentScore = 40
	scanOnce(tr, reading("ETH", 1.0, 100), weak)
	count, _ = store.OpenCount(context.Background())
	assert.Equal(t, 0, count)

	// nil signal (fusion abstained)
	scanOnce(tr, reading("SOL", 1.0, 100), nil)
	count, _ = store.OpenCount(context.Background())
	assert.Equal(t, 0, count)
}

func TestMaxOpenPositionsCap(t *testing.T) {
	tr, store, ctl := newTestTrader(t)
	two := 2
	_, err := ctl.Update(context.Background(), riskctl.Patch{MaxOpenPositions: &two})
	require.NoError(t, err)

	for _, tk := range []string{"BTC", "ETH", "SOL", "ADA"} {
		scanOnce(tr, reading(tk, 1.0, 100), strongSignal(tk, 100))
	}
	count, _ := store.OpenCount(context.Background())
	assert.Equal(t, 2, count)
}

func TestCooldownSuppressesReentry(t *testing.T) {
	tr, store, _ := newTestTrader(t)
	now := time.Now().UTC()
	tr.SetClock(func() time.Time { return now })

	// enter, then force an exit via momentum death
	scanOnce(tr, reading("BTC", 1.0, 100), strongSignal("BTC", 100))
	scanOnce(tr, reading("BTC", 0.0, 100), nil) // force 0 < exit threshold

	count, _ := store.OpenCount(context.Background())
	require.Equal(t, 0, count, "momentum death should have closed the position")

	// conditions favorable again, but still inside the 30min cooldown
	scanOnce(tr, reading("BTC", 1.0, 100), strongSignal("BTC", 100))
	count, _ = store.OpenCount(context.Background())
	assert.Equal(t, 0, count, "cooldown must suppress re-entry")

	// after the cooldown expires, re-entry creates a brand new row
	tr.SetClock(func() time.Time { return now.Add(31 * time.Minute) })
	scanOnce(tr, reading("BTC", 1.0, 100), strongSignal("BTC", 100))
	count, _ = store.OpenCount(context.Background())
	assert.Equal(t, 1, count)

	all, _ := store.AllPositions(context.Background(), 0)
	assert.Len(t, all, 2, "re-entry is a new position, never a reopen")
}

func TestFreshEntryNotExitedSameCycle(t *testing.T) {
	tr, store, _ := newTestTrader(t)

	// Raise the exit threshold above the entry force: if the exit check ran
	// against the fresh position in its own cycle, momentum-died would fire
	// immediately.
	ctx := context.Background()
	high := 0.5
	_, err := tr.ctl.Update(ctx, riskctl.Patch{ExitForceThreshold: &high})
	require.NoError(t, err)

	scanOnce(tr, reading("BTC", 0.4, 100), strongSignal("BTC", 100))

	all, _ := store.AllPositions(ctx, 0)
	require.Len(t, all, 1)
	assert.Equal(t, model.PositionOpen, all[0].Status)

	// next cycle the momentum-died rule may close it
	scanOnce(tr, reading("BTC", 0.4, 100), nil)
	all, _ = store.AllPositions(ctx, 0)
	assert.Equal(t, model.PositionClosed, all[0].Status)
}

func TestTakeProfitExitAndProfitFormula(t *testing.T) {
	tr, store, _ := newTestTrader(t)
	ctx := context.Background()

	scanOnce(tr, reading("BTC", 1.0, 100), strongSignal("BTC", 100))
	all, _ := store.AllPositions(ctx, 0)
	require.Len(t, all, 1)
	qty := all[0].Quantity

	// +12% clears the 10% take-profit; momentum has also died, but
	// take-profit has priority
	scanOnce(tr, reading("BTC", 0.0, 112), nil)

	all, _ = store.AllPositions(ctx, 0)
	p := all[0]
	require.Equal(t, model.PositionClosed, p.Status)
	assert.Equal(t, 112.0, p.ExitPrice)
	assert.InDelta(t, (112.0-100.0)*qty, p.Profit, 1e-9, "profit = (exit-entry)*qty")

	events := store.Events()
	require.Len(t, events, 2)
	assert.Equal(t, model.EventTakeProfit, events[1].Type, "take-profit wins over momentum-died")
}

func TestStopLossExit(t *testing.T) {
	tr, store, _ := newTestTrader(t)
	ctx := context.Background()

	scanOnce(tr, reading("BTC", 1.0, 100), strongSignal("BTC", 100))
	scanOnce(tr, reading("BTC", 1.0, 94), nil) // -6% <= -5% stop loss

	all, _ := store.AllPositions(ctx, 0)
	require.Equal(t, model.PositionClosed, all[0].Status)
	events := store.Events()
	assert.Equal(t, model.EventStopLoss, events[1].Type)
	assert.Less(t, all[0].Profit, 0.0)
}

func TestTrailingStopUsesHighWaterMark(t *testing.T) {
	tr, store, _ := newTestTrader(t)
	ctx := context.Background()

	scanOnce(tr, reading("BTC", 1.0, 100), strongSignal("BTC", 100))

	// run up to 112: high-water mark follows, no exit (pnl 12 >= TP? yes!)
	// keep below take-profit: run to 108 instead.
	scanOnce(tr, reading("BTC", 1.0, 108), nil)
	count, _ := store.OpenCount(ctx)
	require.Equal(t, 1, count, "no exit at the top")

	// fall to 104: pnl +4% is below the 5% activation → no trailing exit
	scanOnce(tr, reading("BTC", 1.0, 104), nil)
	count, _ = store.OpenCount(ctx)
	require.Equal(t, 1, count)

	// recover to 109.5 (new HWM), then drop to 106: pnl +6% >= activation,
	// drop from HWM = 3.5/109.5 = 3.2% >= 3% trailing → exit
	scanOnce(tr, reading("BTC", 1.0, 109.5), nil)
	scanOnce(tr, reading("BTC", 1.0, 106), nil)

	all, _ := store.AllPositions(ctx, 0)
	require.Equal(t, model.PositionClosed, all[0].Status)
	events := store.Events()
	assert.Equal(t, model.EventTrailingStop, events[len(events)-1].Type)
}

func TestTrailingDisabledSkipsTrailingRule(t *testing.T) {
	tr, store, ctl := newTestTrader(t)
	ctx := context.Background()
	off := false
	_, err := ctl.Update(ctx, riskctl.Patch{TrailingEnabled: &off})
	require.NoError(t, err)

	scanOnce(tr, reading("BTC", 1.0, 100), strongSignal("BTC", 100))

	// ride to 109.5 then drop to 106: with trailing enabled this is a
	// trailing exit (drop 3.5/109.5 = 3.2% >= 3%), disabled it must hold
	scanOnce(tr, reading("BTC", 1.0, 109.5), nil)
	scanOnce(tr, reading("BTC", 1.0, 106), nil)
	count, _ := store.OpenCount(ctx)
	require.Equal(t, 1, count, "disabled trailing rule must not fire")

	// the lower-priority rules still apply: -6% hits the stop-loss
	scanOnce(tr, reading("BTC", 1.0, 94), nil)
	all, _ := store.AllPositions(ctx, 0)
	require.Equal(t, model.PositionClosed, all[0].Status)
	events := store.Events()
	assert.Equal(t, model.EventStopLoss, events[len(events)-1].Type)
}

func TestMomentumDiedClosesRegardlessOfPnL(t *testing.T) {
	tr, store, _ := newTestTrader(t)
	ctx := context.Background()

	scanOnce(tr, reading("BTC", 1.0, 100), strongSignal("BTC", 100))
	// small loss, not at stop-loss yet, but the anomaly is gone
	scanOnce(tr, reading("BTC", 0.001, 99), nil)

	all, _ := store.AllPositions(ctx, 0)
	require.Equal(t, model.PositionClosed, all[0].Status)
	events := store.Events()
	assert.Equal(t, model.EventMomentumDied, events[1].Type)
}

func TestNarrativeGate(t *testing.T) {
	ctl := riskctl.New("", nil)
	store := memstore.New()
	yes := true
	_, err := ctl.Update(context.Background(), riskctl.Patch{RequireNarrative: &yes})
	require.NoError(t, err)

	tr := New(ctl, store, store, &fusion.StaticNarrative{Value: -1}, nil)
	scanOnce(tr, reading("BTC", 1.0, 100), strongSignal("BTC", 100))
	count, _ := store.OpenCount(context.Background())
	assert.Equal(t, 0, count, "bearish narrative suppresses entry regardless of force")

	// zero narrative (no news) passes: the gate only rejects negatives
	tr2 := New(ctl, store, store, &fusion.StaticNarrative{Value: 0}, nil)
	scanOnce(tr2, reading("ETH", 1.0, 100), strongSignal("ETH", 100))
	count, _ = store.OpenCount(context.Background())
	assert.Equal(t, 1, count)
}

func TestEndToEndScenario(t *testing.T) {
	// Feed BTC (price, volume) pairs through the full chain: compute force
	// from the window, fuse with agreeing sources, and confirm an entry with
	// quantity = tradeSizeUSD / 116.
	now := time.Now().UTC()
	pairs := [][2]float64{{100, 50}, {101, 60}, {103, 80}, {108, 150}, {116, 300}}

	ws := force.NewWindowStore(50, time.Hour)
	for idx, p := range pairs {
		ws.Add(model.Observation{
			Ticker: "BTC", Value: p[0], Volume: p[1],
			TS: now.Add(time.Duration(idx) * time.Second),
		})
	}

	window := ws.Window("BTC", now)
	r, ok := force.Compute(window, 0.05)
	require.True(t, ok)
	assert.Greater(t, r.HijackForce, 0.08, "force must clear the entry threshold")

	bull := &fusion.StaticSource{SourceName: "s", Result: fusion.Vote{Polarity: model.Bullish, Display: "bull"}}
	eng := fusion.NewEngine(fusion.DefaultWeights(),
		fusion.NewMomentumPredictor(2, 4, 3), bull, bull, bull, bull)
	sig := eng.Fuse(context.Background(), r, window)
	require.NotNil(t, sig)

	ctl := riskctl.New("", nil)
	store := memstore.New()
	tr := New(ctl, store, store, nil, nil)
	tr.Scan(context.Background(), []model.ForceReading{r}, map[string]*model.TradeSignal{"BTC": sig})

	open, err := store.OpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.InDelta(t, riskctl.DefaultConfig().TradeSizeUSD/116.0, open[0].Quantity, 1e-9)
}
