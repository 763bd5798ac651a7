// Package harness implements the fault-injection validation suite. Every
// drill injects a synthetic adverse condition through the shared override
// registry, asserts the protective response fires, clears the injection and
// asserts the response retracts, with cleanup guaranteed even on panic.
package harness

import (
	"context"

	"ramp-guard/internal/domain"
	"ramp-guard/internal/guard"
)

// Deps are the live protective components the drills exercise. Drills mutate
// the same override registry the trading path reads; the suite runner
// snapshots it before the first drill and force-restores it after the last.
type Deps struct {
	Overrides  *guard.Overrides
	KillSwitch *guard.KillSwitchDetector
	Freeze     *guard.PromotionFreeze
	Regime     *guard.RegimeDetector
	Profiles   *guard.ProfileSelector
	Executor   *guard.PaperExecutor

	// TradingFrozen reports whether the live path is currently refusing
	// submissions. Optional; nil means "not frozen".
	TradingFrozen func() bool
}

func (d Deps) tradingFrozen() bool {
	if d.TradingFrozen == nil {
		return false
	}
	return d.TradingFrozen()
}

// Drill is one scripted fault-injection test.
type Drill interface {
	Name() string
	Run(ctx context.Context, deps Deps) domain.DrillResult
}

func pass(name string) domain.DrillResult {
	return domain.DrillResult{Name: name, Passed: true, Details: "ok"}
}

func fail(name, details string) domain.DrillResult {
	return domain.DrillResult{Name: name, Passed: false, Details: details}
}
