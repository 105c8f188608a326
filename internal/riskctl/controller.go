// Package riskctl owns the mutable runtime configuration that gates every
// trading decision: thresholds, toggles, and the kill switch. All reads by
// the force/fusion/autotrader layers go through the Controller so a runtime
// update takes effect on the next scan cycle without a restart.
package riskctl

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/pquerna/otp/totp"
)

// RuntimeConfig is the process-wide trading policy. Mutated only through
// Update/Reset/Kill/Release; everything else reads a snapshot.
type RuntimeConfig struct {
	EntryForceThreshold       float64 `json:"entry_force_threshold"`
	ExitForceThreshold        float64 `json:"exit_force_threshold"`
	AlertForceThreshold       float64 `json:"alert_force_threshold"`
	StopLossPercent           float64 `json:"stop_loss_percent"` // negative
	TakeProfitPercent         float64 `json:"take_profit_percent"`
	TrailingStopPercent       float64 `json:"trailing_stop_percent"`
	TrailingActivationPercent float64 `json:"trailing_activation_percent"`
	MaxOpenPositions          int     `json:"max_open_positions"`
	TradeSizeUSD              float64 `json:"trade_size_usd"`
	CooldownMinutes           int     `json:"cooldown_minutes"`
	MinAlignment              int     `json:"min_alignment"`
	MinConfidence             float64 `json:"min_confidence"`

	KillSwitch       bool `json:"kill_switch"`
	PaperTrading     bool `json:"paper_trading"`
	LiveTrading      bool `json:"live_trading"`
	TrailingEnabled  bool `json:"trailing_enabled"`
	RequireNarrative bool `json:"require_narrative"`
}

// DefaultConfig returns the documented default policy. Reset restores
// exactly this snapshot.
func DefaultConfig() RuntimeConfig {
	return RuntimeConfig{
		EntryForceThreshold:       0.08,
		ExitForceThreshold:        0.01,
		AlertForceThreshold:       0.05,
		StopLossPercent:           -5,
		TakeProfitPercent:         10,
		TrailingStopPercent:       3,
		TrailingActivationPercent: 5,
		MaxOpenPositions:          5,
		TradeSizeUSD:              1000,
		CooldownMinutes:           30,
		MinAlignment:              60,
		MinConfidence:             55,

		KillSwitch:       false,
		PaperTrading:     true,
		LiveTrading:      false,
		TrailingEnabled:  true,
		RequireNarrative: false,
	}
}

// Patch is a partial config update: nil fields are left unchanged.
type Patch struct {
	EntryForceThreshold       *float64 `json:"entry_force_threshold,omitempty"`
	ExitForceThreshold        *float64 `json:"exit_force_threshold,omitempty"`
	AlertForceThreshold       *float64 `json:"alert_force_threshold,omitempty"`
	StopLossPercent           *float64 `json:"stop_loss_percent,omitempty"`
	TakeProfitPercent         *float64 `json:"take_profit_percent,omitempty"`
	TrailingStopPercent       *float64 `json:"trailing_stop_percent,omitempty"`
	TrailingActivationPercent *float64 `json:"trailing_activation_percent,omitempty"`
	MaxOpenPositions          *int     `json:"max_open_positions,omitempty"`
	TradeSizeUSD              *float64 `json:"trade_size_usd,omitempty"`
	CooldownMinutes           *int     `json:"cooldown_minutes,omitempty"`
	MinAlignment              *int     `json:"min_alignment,omitempty"`
	MinConfidence             *float64 `json:"min_confidence,omitempty"`

	PaperTrading     *bool `json:"paper_trading,omitempty"`
	LiveTrading      *bool `json:"live_trading,omitempty"`
	TrailingEnabled  *bool `json:"trailing_enabled,omitempty"`
	RequireNarrative *bool `json:"require_narrative,omitempty"`
}

// Validate rejects out-of-range values before they can reach the live
// config. A rejected patch is not applied at all.
func (p *Patch) Validate() error {
	if p.EntryForceThreshold != nil && *p.EntryForceThreshold < 0 {
		return fmt.Errorf("entry_force_threshold must be >= 0")
	}
	if p.ExitForceThreshold != nil && *p.ExitForceThreshold < 0 {
		return fmt.Errorf("exit_force_threshold must be >= 0")
	}
	if p.AlertForceThreshold != nil && *p.AlertForceThreshold < 0 {
		return fmt.Errorf("alert_force_threshold must be >= 0")
	}
	if p.StopLossPercent != nil && *p.StopLossPercent >= 0 {
		return fmt.Errorf("stop_loss_percent must be negative")
	}
	if p.TakeProfitPercent != nil && *p.TakeProfitPercent <= 0 {
		return fmt.Errorf("take_profit_percent must be positive")
	}
	if p.TrailingStopPercent != nil && *p.TrailingStopPercent <= 0 {
		return fmt.Errorf("trailing_stop_percent must be positive")
	}
	if p.TrailingActivationPercent != nil && *p.TrailingActivationPercent < 0 {
		return fmt.Errorf("trailing_activation_percent must be >= 0")
	}
	if p.MaxOpenPositions != nil && *p.MaxOpenPositions < 0 {
		return fmt.Errorf("max_open_positions must be >= 0")
	}
	if p.TradeSizeUSD != nil && *p.TradeSizeUSD <= 0 {
		return fmt.Errorf("trade_size_usd must be positive")
	}
	if p.CooldownMinutes != nil && *p.CooldownMinutes < 0 {
		return fmt.Errorf("cooldown_minutes must be >= 0")
	}
	if p.MinAlignment != nil && (*p.MinAlignment < 0 || *p.MinAlignment > 100) {
		return fmt.Errorf("min_alignment must be in [0,100]")
	}
	if p.MinConfidence != nil && (*p.MinConfidence < 0 || *p.MinConfidence > 100) {
		return fmt.Errorf("min_confidence must be in [0,100]")
	}
	return nil
}

// Persister saves and restores the runtime config across restarts.
// Saving is best-effort; the in-memory config is the source of truth.
type Persister interface {
	SaveConfig(ctx context.Context, cfg RuntimeConfig) error
	LoadConfig(ctx context.Context) (*RuntimeConfig, error)
}

// Controller holds the live config. Safe for concurrent use.
type Controller struct {
	mu         sync.RWMutex
	cfg        RuntimeConfig
	totpSecret string
	persist    Persister
}

// New creates a controller starting from the defaults. totpSecret guards
// kill-switch release and reset when non-empty; persist may be nil.
func New(totpSecret string, persist Persister) *Controller {
	return &Controller{
		cfg:        DefaultConfig(),
		totpSecret: totpSecret,
		persist:    persist,
	}
}

// Load restores a persisted config snapshot. Returns true if one existed.
func (c *Controller) Load(ctx context.Context) bool {
	if c.persist == nil {
		return false
	}
	cfg, err := c.persist.LoadConfig(ctx)
	if err != nil || cfg == nil {
		return false
	}
	c.mu.Lock()
	c.cfg = *cfg
	c.enforceKillSwitchLocked()
	c.mu.Unlock()
	log.Printf("[riskctl] restored runtime config from store")
	return true
}

// Current returns a snapshot of the live config.
func (c *Controller) Current() RuntimeConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// TradingAllowed reports whether paper entries may execute at all.
func (c *Controller) TradingAllowed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.cfg.KillSwitch && c.cfg.PaperTrading
}

// Update merges a validated patch into the live config.
// The kill-switch invariant is re-enforced after the merge: while killed,
// trading flags cannot be switched on through a patch.
func (c *Controller) Update(ctx context.Context, p Patch) (RuntimeConfig, error) {
	if err := p.Validate(); err != nil {
		return c.Current(), fmt.Errorf("riskctl: invalid update: %w", err)
	}

	c.mu.Lock()
	applyPatch(&c.cfg, p)
	c.enforceKillSwitchLocked()
	cfg := c.cfg
	c.mu.Unlock()

	c.save(ctx, cfg)
	log.Printf("[riskctl] runtime config updated")
	return cfg, nil
}

// Reset restores the default snapshot, overwriting any prior updates.
// TOTP-guarded when a secret is configured.
func (c *Controller) Reset(ctx context.Context, totpCode string) (RuntimeConfig, error) {
	if err := c.checkTOTP(totpCode); err != nil {
		return c.Current(), err
	}
	c.mu.Lock()
	c.cfg = DefaultConfig()
	cfg := c.cfg
	c.mu.Unlock()

	c.save(ctx, cfg)
	log.Printf("[riskctl] runtime config reset to defaults")
	return cfg, nil
}

// Kill flips the kill switch on and force-disables both trading flags.
// Deliberately unguarded: stopping trading must never be gated on a token.
func (c *Controller) Kill(ctx context.Context, reason string) RuntimeConfig {
	c.mu.Lock()
	c.cfg.KillSwitch = true
	c.cfg.PaperTrading = false
	c.cfg.LiveTrading = false
	cfg := c.cfg
	c.mu.Unlock()

	c.save(ctx, cfg)
	log.Printf("[riskctl] KILL SWITCH ENGAGED: %s", reason)
	return cfg
}

// Release disengages the kill switch and re-enables paper trading only.
// Live trading stays off and must be re-enabled separately — asymmetric on
// purpose. TOTP-guarded when a secret is configured.
func (c *Controller) Release(ctx context.Context, totpCode string) (RuntimeConfig, error) {
	if err := c.checkTOTP(totpCode); err != nil {
		return c.Current(), err
	}
	c.mu.Lock()
	c.cfg.KillSwitch = false
	c.cfg.PaperTrading = true
	c.cfg.LiveTrading = false
	cfg := c.cfg
	c.mu.Unlock()

	c.save(ctx, cfg)
	log.Printf("[riskctl] kill switch released, paper trading re-enabled")
	return cfg, nil
}

// enforceKillSwitchLocked keeps the invariant: kill switch ON means both
// trading flags OFF. Caller holds the write lock.
func (c *Controller) enforceKillSwitchLocked() {
	if c.cfg.KillSwitch {
		c.cfg.PaperTrading = false
		c.cfg.LiveTrading = false
	}
}

func (c *Controller) checkTOTP(code string) error {
	if c.totpSecret == "" {
		return nil
	}
	if !totp.Validate(code, c.totpSecret) {
		return fmt.Errorf("riskctl: invalid TOTP code")
	}
	return nil
}

func (c *Controller) save(ctx context.Context, cfg RuntimeConfig) {
	if c.persist == nil {
		return
	}
	if err := c.persist.SaveConfig(ctx, cfg); err != nil {
		log.Printf("[riskctl] WARNING: failed to persist config: %v", err)
	}
}

func applyPatch(cfg *RuntimeConfig, p Patch) {
	if p.EntryForceThreshold != nil {
		cfg.EntryForceThreshold = *p.EntryForceThreshold
	}
	if p.ExitForceThreshold != nil {
		cfg.ExitForceThreshold = *p.ExitForceThreshold
	}
	if p.AlertForceThreshold != nil {
		cfg.AlertForceThreshold = *p.AlertForceThreshold
	}
	if p.StopLossPercent != nil {
		cfg.StopLossPercent = *p.StopLossPercent
	}
	if p.TakeProfitPercent != nil {
		cfg.TakeProfitPercent = *p.TakeProfitPercent
	}
	if p.TrailingStopPercent != nil {
		cfg.TrailingStopPercent = *p.TrailingStopPercent
	}
	if p.TrailingActivationPercent != nil {
		cfg.TrailingActivationPercent = *p.TrailingActivationPercent
	}
	if p.MaxOpenPositions != nil {
		cfg.MaxOpenPositions = *p.MaxOpenPositions
	}
	if p.TradeSizeUSD != nil {
		cfg.TradeSizeUSD = *p.TradeSizeUSD
	}
	if p.CooldownMinutes != nil {
		cfg.CooldownMinutes = *p.CooldownMinutes
	}
	if p.MinAlignment != nil {
		cfg.MinAlignment = *p.MinAlignment
	}
	if p.MinConfidence != nil {
		cfg.MinConfidence = *p.MinConfidence
	}
	if p.PaperTrading != nil {
		cfg.PaperTrading = *p.PaperTrading
	}
	if p.LiveTrading != nil {
		cfg.LiveTrading = *p.LiveTrading
	}
	if p.TrailingEnabled != nil {
		cfg.TrailingEnabled = *p.TrailingEnabled
	}
	if p.RequireNarrative != nil {
		cfg.RequireNarrative = *p.RequireNarrative
	}
}
