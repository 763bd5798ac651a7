package domain

// DrawdownState tracks peak/trough of portfolio value.
// PeakValue is monotonically non-decreasing; CurrentDrawdownBps <= 0.
type DrawdownState struct {
	PeakValue          float64 `json:"peak_value"`
	CurrentValue       float64 `json:"current_value"`
	CurrentDrawdownBps float64 `json:"current_drawdown_bps"`
	MaxDrawdownBps     float64 `json:"max_drawdown_bps"`
	SoftBlockActive    bool    `json:"soft_block_active"`
}
