package drawdown

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"ramp-guard/internal/domain"
)

func TestMonitor_PeakRatchet(t *testing.T) {
	m := NewMonitor(domain.DrawdownState{})

	m.Update(100)
	m.Update(120)
	st := m.Update(90)

	if st.PeakValue != 120 {
		t.Errorf("Peak: got %f, want 120", st.PeakValue)
	}
	if st.CurrentValue != 90 {
		t.Errorf("Current: got %f, want 90", st.CurrentValue)
	}

	// -25% from peak = -2500 bps
	if math.Abs(st.CurrentDrawdownBps-(-2500)) > 1e-9 {
		t.Errorf("Drawdown: got %f bps, want -2500", st.CurrentDrawdownBps)
	}
	if math.Abs(st.MaxDrawdownBps-(-2500)) > 1e-9 {
		t.Errorf("Max drawdown: got %f bps, want -2500", st.MaxDrawdownBps)
	}
}

func TestMonitor_PeakMonotonicProperty(t *testing.T) {
	// For any update sequence, peak at step k >= peak at step k-1.
	rng := rand.New(rand.NewSource(11))
	m := NewMonitor(domain.DrawdownState{})

	prevPeak := 0.0
	for i := 0; i < 10000; i++ {
		st := m.Update(rng.Float64() * 1000)
		if st.PeakValue < prevPeak {
			t.Fatalf("Peak regressed at step %d: %f < %f", i, st.PeakValue, prevPeak)
		}
		if st.CurrentDrawdownBps > 0 {
			t.Fatalf("Positive drawdown at step %d: %f", i, st.CurrentDrawdownBps)
		}
		prevPeak = st.PeakValue
	}
}

func TestMonitor_PeakMonotonicUnderConcurrency(t *testing.T) {
	m := NewMonitor(domain.DrawdownState{})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 1000; i++ {
				m.Update(rng.Float64() * 500)
			}
		}(int64(g))
	}
	wg.Wait()

	st := m.State()
	if st.PeakValue <= 0 {
		t.Errorf("Expected positive peak after concurrent updates, got %f", st.PeakValue)
	}
	if st.CurrentDrawdownBps > 0 {
		t.Errorf("Drawdown must stay <= 0, got %f", st.CurrentDrawdownBps)
	}
}

func TestAdjustSize_SoftBlock(t *testing.T) {
	// base=1000, drawdown=-200bps, threshold=150bps, reduction=0.4 -> 600, active
	adjusted, active := AdjustSize(1000, -200, 150, 0.4)
	if adjusted != 600 {
		t.Errorf("Adjusted: got %f, want 600", adjusted)
	}
	if !active {
		t.Error("Expected soft block active")
	}
}

func TestAdjustSize_AboveThreshold(t *testing.T) {
	// base=1000, drawdown=-100bps, threshold=150bps -> unchanged, inactive
	adjusted, active := AdjustSize(1000, -100, 150, 0.4)
	if adjusted != 1000 {
		t.Errorf("Adjusted: got %f, want 1000", adjusted)
	}
	if active {
		t.Error("Expected soft block inactive")
	}
}

func TestMonitor_AdjustSizeRecordsFlag(t *testing.T) {
	m := NewMonitor(domain.DrawdownState{})
	m.Update(1000)
	m.Update(970) // -300 bps

	_, active := m.AdjustSize(1000, 150, 0.4)
	if !active {
		t.Fatal("Expected soft block active at -300 bps")
	}
	if !m.State().SoftBlockActive {
		t.Error("Soft block flag not recorded in state")
	}

	m.Update(1000) // back to peak
	_, active = m.AdjustSize(1000, 150, 0.4)
	if active {
		t.Error("Expected soft block cleared at peak")
	}
	if m.State().SoftBlockActive {
		t.Error("Soft block flag not cleared in state")
	}
}
