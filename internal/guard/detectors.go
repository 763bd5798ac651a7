package guard

import (
	"math"
	"sync"

	"github.com/rs/zerolog"
)

// KillSwitchDetector checks whether the kill-switch signal is armed. The
// detector only detects; acting on the result (freezing submissions) is the
// service's job, which is what lets the drill exercise this path passively.
type KillSwitchDetector struct {
	overrides *Overrides
	logger    zerolog.Logger
}

// NewKillSwitchDetector creates a detector over the shared override registry.
func NewKillSwitchDetector(overrides *Overrides, logger zerolog.Logger) *KillSwitchDetector {
	return &KillSwitchDetector{overrides: overrides, logger: logger}
}

// Detect reports whether the kill-switch is armed.
func (d *KillSwitchDetector) Detect() bool {
	if d.overrides.KillSwitch() {
		d.logger.Warn().Msg("kill-switch signal detected")
		return true
	}
	return false
}

// RegimeThresholds bound the market-regime signals considered normal.
type RegimeThresholds struct {
	MaxSkew     float64 // absolute order-flow skew
	MaxFailRate float64 // execution fail rate, 0..1
}

// RegimeDetector compares the injected regime signals against thresholds and
// drives the conservative-mode flag. Evaluated once per tick.
type RegimeDetector struct {
	thresholds RegimeThresholds
	overrides  *Overrides
	logger     zerolog.Logger
}

// NewRegimeDetector creates a regime detector.
func NewRegimeDetector(thresholds RegimeThresholds, overrides *Overrides, logger zerolog.Logger) *RegimeDetector {
	return &RegimeDetector{thresholds: thresholds, overrides: overrides, logger: logger}
}

// Tick evaluates the current signals and sets or clears conservative mode.
// Returns whether a regime mismatch is present.
func (d *RegimeDetector) Tick() bool {
	skew, failRate := d.overrides.RegimeSignals()
	mismatch := math.Abs(skew) > d.thresholds.MaxSkew || failRate > d.thresholds.MaxFailRate

	if mismatch != d.overrides.Conservative() {
		if mismatch {
			d.logger.Warn().Float64("skew", skew).Float64("fail_rate", failRate).Msg("regime mismatch, activating conservative profile")
		} else {
			d.logger.Info().Msg("regime normalized, conservative profile deactivated")
		}
		d.overrides.SetConservative(mismatch)
	}
	return mismatch
}

// PromotionFreeze gates ramp promotions on reconciliation discrepancies.
// Discrepancies come from two places: the startup reconciliation report and
// the injected count in the override registry.
type PromotionFreeze struct {
	mu        sync.Mutex
	overrides *Overrides
	recovered int
}

// NewPromotionFreeze creates a freeze gate over the shared registry.
func NewPromotionFreeze(overrides *Overrides) *PromotionFreeze {
	return &PromotionFreeze{overrides: overrides}
}

// RecordRecovered adds discrepancies found during startup reconciliation.
func (f *PromotionFreeze) RecordRecovered(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recovered += n
}

// ClearRecovered drops the startup discrepancy count after an operator has
// investigated.
func (f *PromotionFreeze) ClearRecovered() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recovered = 0
}

// Frozen reports whether promotions are frozen. Live trading is unaffected.
func (f *PromotionFreeze) Frozen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recovered+f.overrides.Discrepancies() > 0
}
