package memory

import (
	"context"
	"errors"
	"testing"

	"ramp-guard/internal/domain"
	"ramp-guard/internal/storage"
)

func TestRampStateStore_LoadBeforeSave(t *testing.T) {
	store := NewRampStateStore()

	_, err := store.Load(context.Background())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on first start, got %v", err)
	}
}

func TestRampStateStore_SaveAndLoad(t *testing.T) {
	store := NewRampStateStore()
	ctx := context.Background()

	st := &domain.RampState{StageIndex: 2, StageStartTs: 1000, Paused: true, PauseReason: domain.PauseReasonThrottle}
	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	st.StageIndex = 99

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.StageIndex != 2 || got.PauseReason != domain.PauseReasonThrottle {
		t.Errorf("Unexpected state: %+v", got)
	}
}

func TestDrawdownStateStore_SaveReplaces(t *testing.T) {
	store := NewDrawdownStateStore()
	ctx := context.Background()

	if err := store.Save(ctx, &domain.DrawdownState{PeakValue: 100}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, &domain.DrawdownState{PeakValue: 150}); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.PeakValue != 150 {
		t.Errorf("Peak: got %f, want 150", got.PeakValue)
	}
}

func TestSuiteResultStore_LatestSemantics(t *testing.T) {
	store := NewSuiteResultStore()
	ctx := context.Background()

	if _, err := store.LoadLatest(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound before first suite, got %v", err)
	}

	first := &domain.SuiteResult{RunID: "r1", AllPassed: false, Results: []domain.DrillResult{{Name: "kill_switch", Passed: false}}}
	second := &domain.SuiteResult{RunID: "r2", AllPassed: true, Results: []domain.DrillResult{{Name: "kill_switch", Passed: true}}}

	if err := store.SaveLatest(ctx, first); err != nil {
		t.Fatalf("SaveLatest failed: %v", err)
	}
	if err := store.SaveLatest(ctx, second); err != nil {
		t.Fatalf("SaveLatest failed: %v", err)
	}

	got, err := store.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if got.RunID != "r2" || !got.AllPassed {
		t.Errorf("Expected latest result r2, got %+v", got)
	}

	// Returned slice is a copy.
	got.Results[0].Passed = false
	again, _ := store.LoadLatest(ctx)
	if !again.Results[0].Passed {
		t.Error("Stored results were mutated through a returned copy")
	}
}
