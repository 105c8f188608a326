// Package autotrader owns the paper-position lifecycle: entry decisions
// gated by the risk controller, and a priority-ordered exit policy
// (take-profit, trailing stop, stop-loss, momentum-died) evaluated once per
// scan cycle against the open positions snapshotted at cycle start.
package autotrader

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"hijackwatch/internal/fusion"
	"hijackwatch/internal/model"
	"hijackwatch/internal/riskctl"
)

// Notify is a fire-and-forget notification hook invoked with the archived
// lifecycle event and the position it concerns. Failures inside the hook
// must never reach the trading path.
type Notify func(ev model.HijackEvent, pos model.Position)

// Trader evaluates entries and exits each scan cycle.
//
// The cooldown and high-water-mark maps are process-wide, keyed by ticker,
// and survive across cycles but not across restarts.
type Trader struct {
	ctl       *riskctl.Controller
	store     model.PositionStore
	events    model.EventWriter // best-effort, may be nil
	narrative fusion.NarrativeScorer
	notify    Notify

	mu        sync.Mutex
	cooldowns map[string]time.Time // ticker → cooldown expiry
	highWater map[string]float64   // ticker → highest price since entry

	now func() time.Time

	// Metrics hooks
	OnEntry func(ticker string)
	OnExit  func(reason string)
}

// New creates a trader. events, narrative, and notify may be nil.
func New(ctl *riskctl.Controller, store model.PositionStore, events model.EventWriter, narrative fusion.NarrativeScorer, notify Notify) *Trader {
	return &Trader{
		ctl:       ctl,
		store:     store,
		events:    events,
		narrative: narrative,
		notify:    notify,
		cooldowns: make(map[string]time.Time),
		highWater: make(map[string]float64),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the trader's clock. Test hook.
func (t *Trader) SetClock(now func() time.Time) { t.now = now }

// Scan runs one full cycle: exits against the pre-existing OPEN set first,
// then entries. A position opened this cycle is never exit-evaluated in the
// same cycle because the snapshot is taken before any entry.
func (t *Trader) Scan(ctx context.Context, readings []model.ForceReading, signals map[string]*model.TradeSignal) {
	byTicker := make(map[string]model.ForceReading, len(readings))
	for _, r := range readings {
		byTicker[r.Ticker] = r
	}

	open, err := t.store.OpenPositions(ctx)
	if err != nil {
		log.Printf("[autotrader] cannot snapshot open positions, skipping exits: %v", err)
	} else {
		for i := range open {
			t.evaluateExit(ctx, &open[i], byTicker)
		}
	}

	for _, r := range readings {
		t.evaluateEntry(ctx, r, signals[r.Ticker])
	}
}

// evaluateEntry applies all entry preconditions in order and opens a paper
// position when every one holds. Store failure means not-executed: the
// entry is simply retried on the next cycle if conditions still hold.
func (t *Trader) evaluateEntry(ctx context.Context, reading model.ForceReading, sig *model.TradeSignal) {
	cfg := t.ctl.Current()
	if cfg.KillSwitch || !cfg.PaperTrading {
		return
	}
	if sig == nil {
		return
	}
	if reading.HijackForce < cfg.EntryForceThreshold {
		return
	}
	if sig.AlignmentScore < cfg.MinAlignment || sig.Confidence < cfg.MinConfidence {
		return
	}
	if t.onCooldown(reading.Ticker) {
		return
	}

	existing, err := t.store.OpenPosition(ctx, reading.Ticker)
	if err != nil {
		log.Printf("[autotrader] entry check failed for %s: %v", reading.Ticker, err)
		return
	}
	if existing != nil {
		return // at most one OPEN position per ticker
	}

	count, err := t.store.OpenCount(ctx)
	if err != nil {
		log.Printf("[autotrader] open count failed: %v", err)
		return
	}
	if count >= cfg.MaxOpenPositions {
		return
	}

	narrativeScore := t.narrativeScore(ctx, reading.Ticker)
	if cfg.RequireNarrative && narrativeScore < 0 {
		log.Printf("[autotrader] %s entry suppressed by narrative score %.2f", reading.Ticker, narrativeScore)
		return
	}

	price := reading.LatestValue
	if price <= 0 {
		return
	}
	now := t.now()
	pos := model.Position{
		ID:           uuid.NewString(),
		Ticker:       reading.Ticker,
		EntryPrice:   price,
		Quantity:     cfg.TradeSizeUSD / price,
		Status:       model.PositionOpen,
		ForceAtEntry: reading.HijackForce,
		OpenedAt:     now,
	}
	if err := t.store.InsertPosition(ctx, pos); err != nil {
		// Position state is authoritative: treat as not-executed.
		log.Printf("[autotrader] insert position for %s failed: %v", reading.Ticker, err)
		return
	}

	t.mu.Lock()
	t.cooldowns[reading.Ticker] = now.Add(time.Duration(cfg.CooldownMinutes) * time.Minute)
	t.highWater[reading.Ticker] = price
	t.mu.Unlock()

	ev := model.HijackEvent{
		Ticker:         reading.Ticker,
		Price:          price,
		Force:          reading.HijackForce,
		NarrativeScore: narrativeScore,
		Type:           model.EventEntry,
		RecordedAt:     now,
	}
	t.archive(ctx, ev)
	log.Printf("[autotrader] ENTRY %s %s @ %.4f qty=%.6f force=%.4f align=%d",
		sig.Direction, reading.Ticker, price, pos.Quantity, reading.HijackForce, sig.AlignmentScore)
	if t.OnEntry != nil {
		t.OnEntry(reading.Ticker)
	}
	t.send(ev, pos)
}

// evaluateExit runs the priority-ordered exit rules for one open position.
// First matching rule wins; rules are mutually exclusive within a cycle.
func (t *Trader) evaluateExit(ctx context.Context, pos *model.Position, readings map[string]model.ForceReading) {
	reading, ok := readings[pos.Ticker]
	if !ok {
		// No fresh price this cycle; nothing safe to do.
		return
	}
	price := reading.LatestValue
	if price <= 0 {
		return
	}

	hwm := t.bumpHighWater(pos.Ticker, price)

	cfg := t.ctl.Current()
	rule, ok := decideExit(pos, price, hwm, reading.HijackForce, cfg)
	if !ok {
		return
	}

	now := t.now()
	profit := (price - pos.EntryPrice) * pos.Quantity
	if err := t.store.ClosePosition(ctx, pos.ID, price, profit, now); err != nil {
		// Retry next cycle; the high-water mark stays in place.
		log.Printf("[autotrader] close %s (%s) failed: %v", pos.Ticker, rule, err)
		return
	}

	t.mu.Lock()
	delete(t.highWater, pos.Ticker)
	t.mu.Unlock()

	ev := model.HijackEvent{
		Ticker:     pos.Ticker,
		Price:      price,
		Force:      reading.HijackForce,
		Type:       rule,
		RecordedAt: now,
	}
	t.archive(ctx, ev)
	log.Printf("[autotrader] EXIT %s %s @ %.4f profit=%.2f", rule, pos.Ticker, price, profit)
	if t.OnExit != nil {
		t.OnExit(string(rule))
	}
	closed := *pos
	closed.Status = model.PositionClosed
	closed.ExitPrice = price
	closed.Profit = profit
	closed.ClosedAt = now
	t.send(ev, closed)
}

// decideExit applies the exit rules in strict priority order.
func decideExit(pos *model.Position, price, hwm, force float64, cfg riskctl.RuntimeConfig) (model.EventType, bool) {
	pnl := pos.PnLPercent(price)

	// 1. Take-profit
	if pnl >= cfg.TakeProfitPercent {
		return model.EventTakeProfit, true
	}

	// 2. Trailing stop: only once the position is in profit past the
	//    activation threshold.
	if cfg.TrailingEnabled && pnl >= cfg.TrailingActivationPercent && hwm > 0 {
		drop := (hwm - price) / hwm * 100
		if drop >= cfg.TrailingStopPercent {
			return model.EventTrailingStop, true
		}
	}

	// 3. Stop-loss (threshold is negative)
	if pnl <= cfg.StopLossPercent {
		return model.EventStopLoss, true
	}

	// 4. Momentum-died: the anomaly dissipated, close regardless of P&L.
	if force < cfg.ExitForceThreshold {
		return model.EventMomentumDied, true
	}

	return "", false
}

// bumpHighWater raises the ticker's high-water mark if price exceeds it and
// returns the current mark. Falls back to the entry price via the caller's
// initialization at entry; an unknown ticker (process restart) starts at
// the current price.
func (t *Trader) bumpHighWater(ticker string, price float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	hwm, ok := t.highWater[ticker]
	if !ok || price > hwm {
		t.highWater[ticker] = price
		hwm = price
	}
	return hwm
}

func (t *Trader) onCooldown(ticker string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	expiry, ok := t.cooldowns[ticker]
	return ok && t.now().Before(expiry)
}

// narrativeScore fetches the ticker's narrative lean. Unavailable narrative
// counts as 0 (no news), not as bearish: the gate is deliberately loose.
func (t *Trader) narrativeScore(ctx context.Context, ticker string) float64 {
	if t.narrative == nil {
		return 0
	}
	score, err := t.narrative.Score(ctx, ticker)
	if err != nil {
		log.Printf("[autotrader] narrative unavailable for %s: %v", ticker, err)
		return 0
	}
	return score
}

// archive writes a hijack event, best-effort.
func (t *Trader) archive(ctx context.Context, ev model.HijackEvent) {
	if t.events == nil {
		return
	}
	if err := t.events.WriteEvent(ctx, ev); err != nil {
		log.Printf("[autotrader] archive write failed (ignored): %v", err)
	}
}

func (t *Trader) send(ev model.HijackEvent, pos model.Position) {
	if t.notify != nil {
		t.notify(ev, pos)
	}
}
