package harness

import (
	"context"
	"fmt"
	"math"

	"ramp-guard/internal/domain"
	"ramp-guard/internal/guard"
)

// DefaultDrills returns the canonical five-drill suite.
func DefaultDrills(scale guard.ConservativeScale) []Drill {
	return []Drill{
		killSwitchDrill{},
		reconciliationFreezeDrill{},
		regimeMismatchDrill{},
		conservativePropagationDrill{scale: scale, tolerance: 0.01},
		exitExecutionDrill{},
	}
}

// killSwitchDrill verifies the kill-switch detection path is reachable.
// Passive: it never triggers the freeze action itself and asserts the live
// frozen state is unchanged by detection alone.
type killSwitchDrill struct{}

func (killSwitchDrill) Name() string { return "kill_switch_detection" }

func (d killSwitchDrill) Run(_ context.Context, deps Deps) domain.DrillResult {
	baseline := deps.Overrides.KillSwitch()
	frozenBefore := deps.tradingFrozen()
	defer deps.Overrides.SetKillSwitch(baseline)

	deps.Overrides.SetKillSwitch(true)
	if !deps.KillSwitch.Detect() {
		return fail(d.Name(), "armed kill-switch was not detected")
	}
	if deps.tradingFrozen() != frozenBefore {
		return fail(d.Name(), "detection alone changed the live frozen state")
	}

	deps.Overrides.SetKillSwitch(false)
	if deps.KillSwitch.Detect() {
		return fail(d.Name(), "detection did not retract after disarm")
	}
	return pass(d.Name())
}

// reconciliationFreezeDrill injects a discrepancy count and verifies
// promotions freeze, then unfreeze.
type reconciliationFreezeDrill struct{}

func (reconciliationFreezeDrill) Name() string { return "reconciliation_freeze" }

func (d reconciliationFreezeDrill) Run(_ context.Context, deps Deps) domain.DrillResult {
	baseline := deps.Overrides.Discrepancies()
	frozenBefore := deps.Freeze.Frozen()
	defer deps.Overrides.SetDiscrepancies(baseline)

	deps.Overrides.SetDiscrepancies(baseline + 2)
	if !deps.Freeze.Frozen() {
		return fail(d.Name(), "injected discrepancies did not freeze promotions")
	}

	deps.Overrides.SetDiscrepancies(baseline)
	if deps.Freeze.Frozen() != frozenBefore {
		return fail(d.Name(), "freeze did not retract after discrepancies cleared")
	}
	return pass(d.Name())
}

// regimeMismatchDrill injects adverse skew and fail-rate signals and verifies
// the conservative profile activates and deactivates.
type regimeMismatchDrill struct{}

func (regimeMismatchDrill) Name() string { return "regime_mismatch" }

func (d regimeMismatchDrill) Run(_ context.Context, deps Deps) domain.DrillResult {
	skew, failRate := deps.Overrides.RegimeSignals()
	defer func() {
		deps.Overrides.SetRegimeSignals(skew, failRate)
		deps.Regime.Tick()
	}()

	deps.Overrides.SetRegimeSignals(0.9, 0.5)
	if !deps.Regime.Tick() {
		return fail(d.Name(), "adverse regime signals were not flagged as a mismatch")
	}
	if !deps.Overrides.Conservative() {
		return fail(d.Name(), "mismatch did not activate the conservative profile")
	}

	deps.Overrides.SetRegimeSignals(skew, failRate)
	if deps.Regime.Tick() {
		return fail(d.Name(), "mismatch did not clear after signals normalized")
	}
	return pass(d.Name())
}

// conservativePropagationDrill verifies that activating the conservative
// profile shifts every risk parameter in the safe direction by the expected
// delta, and that deactivation restores the baseline exactly.
type conservativePropagationDrill struct {
	scale     guard.ConservativeScale
	tolerance float64 // relative
}

func (conservativePropagationDrill) Name() string { return "conservative_propagation" }

func (d conservativePropagationDrill) Run(_ context.Context, deps Deps) domain.DrillResult {
	was := deps.Overrides.Conservative()
	defer deps.Overrides.SetConservative(was)

	base := deps.Profiles.Baseline()
	deps.Overrides.SetConservative(true)
	active := deps.Profiles.Active()

	checks := []struct {
		param    string
		got      float64
		baseline float64
		scale    float64
	}{
		{"max_position_pct", active.MaxPositionPct, base.MaxPositionPct, d.scale.PositionScale},
		{"stop_distance_bps", active.StopDistanceBps, base.StopDistanceBps, d.scale.StopScale},
		{"size_multiplier", active.SizeMultiplier, base.SizeMultiplier, d.scale.SizeScale},
	}
	for _, c := range checks {
		if c.got >= c.baseline {
			return fail(d.Name(), fmt.Sprintf("%s did not move in the safe direction: %v >= %v", c.param, c.got, c.baseline))
		}
		want := c.baseline * c.scale
		if math.Abs(c.got-want) > d.tolerance*c.baseline {
			return fail(d.Name(), fmt.Sprintf("%s delta out of tolerance: got %v, want %v", c.param, c.got, want))
		}
	}

	deps.Overrides.SetConservative(false)
	if deps.Profiles.Active() != base {
		return fail(d.Name(), "baseline profile was not fully restored after deactivation")
	}
	return pass(d.Name())
}

// exitExecutionDrill opens a synthetic position, pushes the price past the
// stop distance, and verifies automatic closure with no residual test state.
type exitExecutionDrill struct{}

func (exitExecutionDrill) Name() string { return "exit_execution" }

func (d exitExecutionDrill) Run(ctx context.Context, deps Deps) domain.DrillResult {
	defer deps.Executor.ForceClear()

	pos := guard.TestPosition{
		Symbol:          "DRILL-TEST",
		Direction:       domain.DirectionBuy,
		Size:            1,
		EntryPrice:      100,
		StopDistanceBps: 150,
	}
	if err := deps.Executor.OpenTest(pos); err != nil {
		return fail(d.Name(), fmt.Sprintf("open test position: %v", err))
	}

	// Inside the stop distance: nothing should fire.
	closed, err := deps.Executor.Mark(ctx, 99.0)
	if err != nil {
		return fail(d.Name(), fmt.Sprintf("mark pre-stop price: %v", err))
	}
	if closed {
		return fail(d.Name(), "position closed before the stop distance was breached")
	}

	// 160bps adverse move against a 150bps stop.
	closed, err = deps.Executor.Mark(ctx, 98.4)
	if err != nil {
		return fail(d.Name(), fmt.Sprintf("mark post-stop price: %v", err))
	}
	if !closed {
		return fail(d.Name(), "stop breach did not close the position")
	}
	if deps.Executor.HasTestPosition() {
		return fail(d.Name(), "residual test position remains after closure")
	}
	return pass(d.Name())
}
