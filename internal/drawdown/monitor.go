// Package drawdown implements the peak/trough drawdown monitor with a
// soft-block sizing reduction.
package drawdown

import (
	"sync"

	"ramp-guard/internal/domain"
)

// Monitor tracks the portfolio value peak and current drawdown in basis
// points. The peak is a monotonic ratchet: concurrent updates can only ever
// raise it.
type Monitor struct {
	mu    sync.Mutex
	state domain.DrawdownState
}

// NewMonitor creates a monitor. An initial value of 0 means the first update
// establishes the peak.
func NewMonitor(initial domain.DrawdownState) *Monitor {
	return &Monitor{state: initial}
}

// Update records the current portfolio value and returns the refreshed state.
// The peak only rises; current drawdown is (value-peak)/peak in bps (<= 0)
// and max drawdown keeps the most negative value seen.
func (m *Monitor) Update(currentValue float64) domain.DrawdownState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if currentValue > m.state.PeakValue {
		m.state.PeakValue = currentValue
	}
	m.state.CurrentValue = currentValue

	if m.state.PeakValue > 0 {
		m.state.CurrentDrawdownBps = (currentValue - m.state.PeakValue) / m.state.PeakValue * 10000
	} else {
		m.state.CurrentDrawdownBps = 0
	}

	if m.state.CurrentDrawdownBps < m.state.MaxDrawdownBps {
		m.state.MaxDrawdownBps = m.state.CurrentDrawdownBps
	}

	return m.state
}

// State returns a copy of the current drawdown state.
func (m *Monitor) State() domain.DrawdownState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// AdjustSize applies the soft-block reduction: past the soft threshold the
// base size is cut by reductionPct and the soft block is reported active.
// drawdownBps is expected <= 0; softThresholdBps is a positive magnitude.
func AdjustSize(baseSize, drawdownBps, softThresholdBps, reductionPct float64) (float64, bool) {
	if drawdownBps <= -softThresholdBps {
		return baseSize * (1 - reductionPct), true
	}
	return baseSize, false
}

// AdjustSize applies the soft-block reduction against the monitor's current
// drawdown and records the soft-block flag in the state.
func (m *Monitor) AdjustSize(baseSize, softThresholdBps, reductionPct float64) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	adjusted, active := AdjustSize(baseSize, m.state.CurrentDrawdownBps, softThresholdBps, reductionPct)
	m.state.SoftBlockActive = active
	return adjusted, active
}
