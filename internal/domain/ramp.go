package domain

import "time"

// RampStage is one step of the configured exposure ramp. Stages form an
// ordered, immutable sequence defined by configuration.
type RampStage struct {
	Index                 int           `json:"index" yaml:"index"`
	Duration              time.Duration `json:"duration" yaml:"duration"`
	MaxExposureMultiplier float64       `json:"max_exposure_multiplier" yaml:"max_exposure_multiplier"`
	Label                 string        `json:"label" yaml:"label"`
}

// PauseReason identifies why ramp advancement is frozen.
type PauseReason string

const (
	PauseReasonNone            PauseReason = ""
	PauseReasonThrottle        PauseReason = "THROTTLE_INACTIVE"
	PauseReasonSharpeBelow     PauseReason = "SHARPE_BELOW_HOLD"
	PauseReasonSortinoBelow    PauseReason = "SORTINO_BELOW_HOLD"
	PauseReasonDrawdownFloor   PauseReason = "DRAWDOWN_BELOW_FLOOR"
	PauseReasonSuiteFailed     PauseReason = "VALIDATION_SUITE_FAILED"
	PauseReasonPromotionFrozen PauseReason = "PROMOTIONS_FROZEN"
	PauseReasonPersistence     PauseReason = "PERSISTENCE_UNWRITABLE"
)

// RampState is the persisted state of the capital ramp controller.
// StageIndex is monotonically non-decreasing except on administrative reset
// and advances by at most one stage per evaluation tick.
type RampState struct {
	StageIndex     int         `json:"stage_index"`
	StageStartTs   int64       `json:"stage_start_ts"` // unix ms
	TotalRampHours float64     `json:"total_ramp_hours"`
	Paused         bool        `json:"paused"`
	PauseReason    PauseReason `json:"pause_reason"`
}
