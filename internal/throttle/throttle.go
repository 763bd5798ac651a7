// Package throttle implements the risk throttle: a health flag derived from
// the most recent performance snapshot once enough samples have been seen.
package throttle

import (
	"sync"

	"ramp-guard/internal/domain"
)

// Thresholds configures throttle activation.
type Thresholds struct {
	MinSnapshots int
	MinSharpe    float64
	MinSortino   float64
}

// Throttle accumulates snapshot count plus the latest sharpe/sortino.
// It stays inactive until MinSnapshots have been observed, regardless of the
// metric values; this is the fail-safe for missing data.
type Throttle struct {
	mu sync.Mutex

	thresholds Thresholds
	collected  int
	sharpe     float64
	sortino    float64
}

// New creates a throttle.
func New(thresholds Thresholds) *Throttle {
	return &Throttle{thresholds: thresholds}
}

// Observe records one metric snapshot.
func (t *Throttle) Observe(s domain.MetricSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.collected++
	t.sharpe = s.Sharpe
	t.sortino = s.Sortino
}

// Evaluate returns whether the throttle is active. Inactive until enough
// snapshots were collected, then active iff both ratios clear their floors.
func (t *Throttle) Evaluate() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.collected < t.thresholds.MinSnapshots {
		return false
	}
	return t.sharpe >= t.thresholds.MinSharpe && t.sortino >= t.thresholds.MinSortino
}

// SnapshotsCollected returns the number of snapshots observed so far.
func (t *Throttle) SnapshotsCollected() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.collected
}
