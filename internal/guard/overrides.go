// Package guard composes the protective components around the live trading
// path: the override registry, kill-switch and regime detectors, risk
// profiles, the paper executor, and the service that ties them to the ramp,
// throttle, ledger and drawdown monitor.
package guard

import "sync"

// Overrides is the single authority for protective and test-mode flags.
// The live path and the fault-injection drills read and write the same
// registry; a snapshot/restore pair around the suite makes the restore total.
type Overrides struct {
	mu sync.Mutex

	killSwitch     bool
	discrepancies  int
	regimeSkew     float64
	regimeFailRate float64
	conservative   bool
}

// OverrideSnapshot is a point-in-time copy of every flag in the registry.
type OverrideSnapshot struct {
	KillSwitch     bool
	Discrepancies  int
	RegimeSkew     float64
	RegimeFailRate float64
	Conservative   bool
}

// NewOverrides creates an empty registry with every flag at baseline.
func NewOverrides() *Overrides {
	return &Overrides{}
}

// SetKillSwitch arms or disarms the kill-switch signal.
func (o *Overrides) SetKillSwitch(armed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.killSwitch = armed
}

// KillSwitch reports whether the kill-switch signal is armed.
func (o *Overrides) KillSwitch() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.killSwitch
}

// SetDiscrepancies injects a reconciliation discrepancy count.
func (o *Overrides) SetDiscrepancies(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.discrepancies = n
}

// Discrepancies returns the injected discrepancy count.
func (o *Overrides) Discrepancies() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.discrepancies
}

// SetRegimeSignals injects market regime signals (order-flow skew and
// execution fail rate).
func (o *Overrides) SetRegimeSignals(skew, failRate float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.regimeSkew = skew
	o.regimeFailRate = failRate
}

// RegimeSignals returns the current regime signals.
func (o *Overrides) RegimeSignals() (skew, failRate float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.regimeSkew, o.regimeFailRate
}

// SetConservative toggles the conservative risk profile.
func (o *Overrides) SetConservative(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.conservative = on
}

// Conservative reports whether the conservative risk profile is active.
func (o *Overrides) Conservative() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conservative
}

// Snapshot copies every flag.
func (o *Overrides) Snapshot() OverrideSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return OverrideSnapshot{
		KillSwitch:     o.killSwitch,
		Discrepancies:  o.discrepancies,
		RegimeSkew:     o.regimeSkew,
		RegimeFailRate: o.regimeFailRate,
		Conservative:   o.conservative,
	}
}

// Restore sets every flag back to a snapshot's values.
func (o *Overrides) Restore(s OverrideSnapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.killSwitch = s.KillSwitch
	o.discrepancies = s.Discrepancies
	o.regimeSkew = s.RegimeSkew
	o.regimeFailRate = s.RegimeFailRate
	o.conservative = s.Conservative
}

// ForceReset zeroes every flag. Emergency escape hatch.
func (o *Overrides) ForceReset() {
	o.Restore(OverrideSnapshot{})
}
