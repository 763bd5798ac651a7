package throttle

import (
	"testing"

	"ramp-guard/internal/domain"
)

func TestThrottle_InactiveBelowMinSnapshots(t *testing.T) {
	// Regardless of how good the ratios are, n < min_snapshots stays inactive.
	th := New(Thresholds{MinSnapshots: 5, MinSharpe: 0.5, MinSortino: 0.5})

	for i := 0; i < 4; i++ {
		th.Observe(domain.MetricSnapshot{Sharpe: 10, Sortino: 10})
		if th.Evaluate() {
			t.Fatalf("Throttle active after %d snapshots, min is 5", i+1)
		}
	}
}

func TestThrottle_ActivatesOnHealthyMetrics(t *testing.T) {
	th := New(Thresholds{MinSnapshots: 3, MinSharpe: 0.8, MinSortino: 1.0})

	for i := 0; i < 3; i++ {
		th.Observe(domain.MetricSnapshot{Sharpe: 1.2, Sortino: 1.5})
	}
	if !th.Evaluate() {
		t.Error("Expected active throttle with healthy metrics past min snapshots")
	}
}

func TestThrottle_UsesMostRecentSnapshot(t *testing.T) {
	th := New(Thresholds{MinSnapshots: 2, MinSharpe: 0.8, MinSortino: 1.0})

	th.Observe(domain.MetricSnapshot{Sharpe: 2.0, Sortino: 2.0})
	th.Observe(domain.MetricSnapshot{Sharpe: 2.0, Sortino: 2.0})
	if !th.Evaluate() {
		t.Fatal("Expected active throttle")
	}

	// A degraded latest snapshot deactivates even though history was healthy.
	th.Observe(domain.MetricSnapshot{Sharpe: 0.1, Sortino: 2.0})
	if th.Evaluate() {
		t.Error("Expected inactive throttle after degraded sharpe")
	}

	th.Observe(domain.MetricSnapshot{Sharpe: 2.0, Sortino: 0.1})
	if th.Evaluate() {
		t.Error("Expected inactive throttle after degraded sortino")
	}
}

func TestThrottle_BothRatiosRequired(t *testing.T) {
	th := New(Thresholds{MinSnapshots: 1, MinSharpe: 1.0, MinSortino: 1.0})

	th.Observe(domain.MetricSnapshot{Sharpe: 1.5, Sortino: 0.5})
	if th.Evaluate() {
		t.Error("Expected inactive: sortino below floor")
	}

	th.Observe(domain.MetricSnapshot{Sharpe: 1.5, Sortino: 1.5})
	if !th.Evaluate() {
		t.Error("Expected active: both ratios above floors")
	}
}
