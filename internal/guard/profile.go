package guard

// RiskProfile is the set of sizing parameters the execution path consumes.
type RiskProfile struct {
	MaxPositionPct  float64 // fraction of equity allowed per position
	StopDistanceBps float64 // distance from entry to protective stop
	SizeMultiplier  float64 // scalar applied to computed order size
}

// ConservativeScale defines how each parameter shifts when the conservative
// profile activates. Every scale must move the parameter in the safe
// direction: smaller positions, tighter stops, smaller sizes.
type ConservativeScale struct {
	PositionScale float64
	StopScale     float64
	SizeScale     float64
}

// DefaultConservativeScale halves exposure and tightens stops by 40%.
func DefaultConservativeScale() ConservativeScale {
	return ConservativeScale{PositionScale: 0.5, StopScale: 0.6, SizeScale: 0.5}
}

// ProfileSelector returns the baseline or the derived conservative profile
// depending on the conservative-mode flag in the override registry.
type ProfileSelector struct {
	baseline     RiskProfile
	conservative RiskProfile
	overrides    *Overrides
}

// NewProfileSelector derives the conservative profile from the baseline once,
// at construction, so the two never drift.
func NewProfileSelector(baseline RiskProfile, scale ConservativeScale, overrides *Overrides) *ProfileSelector {
	return &ProfileSelector{
		baseline: baseline,
		conservative: RiskProfile{
			MaxPositionPct:  baseline.MaxPositionPct * scale.PositionScale,
			StopDistanceBps: baseline.StopDistanceBps * scale.StopScale,
			SizeMultiplier:  baseline.SizeMultiplier * scale.SizeScale,
		},
		overrides: overrides,
	}
}

// Active returns the profile in effect.
func (s *ProfileSelector) Active() RiskProfile {
	if s.overrides.Conservative() {
		return s.conservative
	}
	return s.baseline
}

// Baseline returns the configured baseline profile.
func (s *ProfileSelector) Baseline() RiskProfile {
	return s.baseline
}
