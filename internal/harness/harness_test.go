package harness

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ramp-guard/internal/domain"
	"ramp-guard/internal/guard"
	"ramp-guard/internal/storage/memory"
)

func testDeps() Deps {
	overrides := guard.NewOverrides()
	return Deps{
		Overrides:  overrides,
		KillSwitch: guard.NewKillSwitchDetector(overrides, zerolog.Nop()),
		Freeze:     guard.NewPromotionFreeze(overrides),
		Regime: guard.NewRegimeDetector(
			guard.RegimeThresholds{MaxSkew: 0.5, MaxFailRate: 0.2}, overrides, zerolog.Nop()),
		Profiles: guard.NewProfileSelector(
			guard.RiskProfile{MaxPositionPct: 0.2, StopDistanceBps: 250, SizeMultiplier: 1.0},
			guard.DefaultConservativeScale(), overrides),
		Executor: guard.NewPaperExecutor(
			func(context.Context, string, domain.Direction, float64) error { return nil },
			zerolog.Nop()),
	}
}

func newTestRunner(deps Deps, drills []Drill) (*Runner, *memory.SuiteResultStore) {
	store := memory.NewSuiteResultStore()
	r := NewRunner(RunnerOptions{
		Drills: drills,
		Deps:   deps,
		Store:  store,
		Logger: zerolog.Nop(),
	})
	return r, store
}

func TestDefaultDrills_AllPassOnHealthySystem(t *testing.T) {
	deps := testDeps()
	r, store := newTestRunner(deps, DefaultDrills(guard.DefaultConservativeScale()))

	suite, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !suite.AllPassed {
		for _, res := range suite.Results {
			if !res.Passed {
				t.Errorf("Drill %s failed: %s", res.Name, res.Details)
			}
		}
		t.Fatal("Expected all drills to pass")
	}
	if len(suite.Results) != 5 {
		t.Errorf("Results: got %d, want 5", len(suite.Results))
	}
	if suite.RunID == "" {
		t.Error("Expected a non-empty run id")
	}

	persisted, err := store.LoadLatest(context.Background())
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if persisted.RunID != suite.RunID {
		t.Errorf("Persisted run id mismatch: %s vs %s", persisted.RunID, suite.RunID)
	}
}

func TestRun_RestoresBaselineRegardlessOfOutcome(t *testing.T) {
	deps := testDeps()
	// A dirty but deliberate pre-suite baseline.
	deps.Overrides.SetDiscrepancies(1)
	deps.Overrides.SetRegimeSignals(0.1, 0.05)
	baseline := deps.Overrides.Snapshot()

	drills := append(DefaultDrills(guard.DefaultConservativeScale()), leakyDrill{})
	r, _ := newTestRunner(deps, drills)

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := deps.Overrides.Snapshot(); got != baseline {
		t.Errorf("Overrides not restored: got %+v, want %+v", got, baseline)
	}
	if deps.Executor.HasTestPosition() {
		t.Error("Residual test position after suite")
	}
}

// leakyDrill deliberately skips its own cleanup to prove the suite-level
// forced reset covers for it.
type leakyDrill struct{}

func (leakyDrill) Name() string { return "leaky" }

func (leakyDrill) Run(_ context.Context, deps Deps) domain.DrillResult {
	deps.Overrides.SetKillSwitch(true)
	deps.Overrides.SetDiscrepancies(99)
	deps.Overrides.SetConservative(true)
	return domain.DrillResult{Name: "leaky", Passed: false, Details: "left flags dirty"}
}

type panickyDrill struct{}

func (panickyDrill) Name() string { return "panicky" }

func (panickyDrill) Run(context.Context, Deps) domain.DrillResult {
	panic("drill blew up")
}

func TestRun_PanicBecomesFailedResult(t *testing.T) {
	deps := testDeps()
	baseline := deps.Overrides.Snapshot()
	r, _ := newTestRunner(deps, []Drill{panickyDrill{}})

	suite, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if suite.AllPassed {
		t.Error("Suite with a panicking drill must not pass")
	}
	if len(suite.Results) != 1 || suite.Results[0].Passed {
		t.Fatalf("Unexpected results: %+v", suite.Results)
	}
	if !strings.Contains(suite.Results[0].Details, "panic") {
		t.Errorf("Details should mention the panic, got %q", suite.Results[0].Details)
	}
	if got := deps.Overrides.Snapshot(); got != baseline {
		t.Errorf("Overrides not restored after panic: %+v", got)
	}
}

type hangingDrill struct{}

func (hangingDrill) Name() string { return "hanging" }

func (hangingDrill) Run(ctx context.Context, _ Deps) domain.DrillResult {
	<-ctx.Done()
	time.Sleep(10 * time.Millisecond)
	return domain.DrillResult{Name: "hanging", Passed: true}
}

func TestRun_SlowDrillFailsInsteadOfHanging(t *testing.T) {
	deps := testDeps()
	store := memory.NewSuiteResultStore()
	r := NewRunner(RunnerOptions{
		Drills:       []Drill{hangingDrill{}},
		Deps:         deps,
		Store:        store,
		DrillTimeout: 20 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})

	suite, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if suite.AllPassed {
		t.Error("A drill exceeding its time bound must fail the suite")
	}
	if !strings.Contains(suite.Results[0].Details, "time bound") {
		t.Errorf("Details: got %q, want a time-bound failure", suite.Results[0].Details)
	}
}

// blockingDrill holds the suite until released, to prove runs never overlap.
type blockingDrill struct {
	entered chan struct{}
	release chan struct{}
}

func (blockingDrill) Name() string { return "blocking" }

func (d blockingDrill) Run(context.Context, Deps) domain.DrillResult {
	select {
	case d.entered <- struct{}{}:
	default:
	}
	<-d.release
	return domain.DrillResult{Name: "blocking", Passed: true}
}

func TestRun_SuiteRunsNeverOverlap(t *testing.T) {
	deps := testDeps()
	d := blockingDrill{entered: make(chan struct{}, 1), release: make(chan struct{})}
	r, _ := newTestRunner(deps, []Drill{d})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := r.Run(context.Background()); err != nil {
			t.Errorf("First run failed: %v", err)
		}
	}()
	<-d.entered

	second := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Blocks until the first run releases the suite lock.
		if _, err := r.Run(context.Background()); err != nil {
			t.Errorf("Second run failed: %v", err)
		}
		close(second)
	}()

	select {
	case <-second:
		t.Fatal("Second run completed while the first was still inside a drill")
	case <-time.After(50 * time.Millisecond):
	}

	close(d.release)
	wg.Wait()
	select {
	case <-second:
	default:
		t.Error("Second run never completed after the lock was released")
	}
}

func TestKillSwitchDrill_PassiveWithRespectToLiveFreeze(t *testing.T) {
	deps := testDeps()
	frozen := false
	deps.TradingFrozen = func() bool { return frozen }

	res := killSwitchDrill{}.Run(context.Background(), deps)
	if !res.Passed {
		t.Fatalf("Drill failed: %s", res.Details)
	}
	if deps.Overrides.KillSwitch() {
		t.Error("Kill-switch left armed after drill")
	}
}

func TestConservativePropagationDrill_DetectsWrongDirection(t *testing.T) {
	overrides := guard.NewOverrides()
	deps := testDeps()
	deps.Overrides = overrides
	// A selector whose "conservative" profile is riskier than baseline.
	deps.Profiles = guard.NewProfileSelector(
		guard.RiskProfile{MaxPositionPct: 0.2, StopDistanceBps: 250, SizeMultiplier: 1.0},
		guard.ConservativeScale{PositionScale: 2.0, StopScale: 2.0, SizeScale: 2.0},
		overrides,
	)

	res := conservativePropagationDrill{scale: guard.DefaultConservativeScale(), tolerance: 0.01}.
		Run(context.Background(), deps)
	if res.Passed {
		t.Error("Drill must fail when the profile moves in the unsafe direction")
	}
}

func TestExitExecutionDrill_FailsWhenCloseErrors(t *testing.T) {
	deps := testDeps()
	deps.Executor = guard.NewPaperExecutor(
		func(context.Context, string, domain.Direction, float64) error {
			return context.DeadlineExceeded
		}, zerolog.Nop())

	res := exitExecutionDrill{}.Run(context.Background(), deps)
	if res.Passed {
		t.Error("Drill must fail when the closing order cannot execute")
	}
	if deps.Executor.HasTestPosition() {
		t.Error("Drill cleanup must clear the test position even on failure")
	}
}
