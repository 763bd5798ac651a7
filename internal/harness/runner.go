package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ramp-guard/internal/domain"
	"ramp-guard/internal/storage"
)

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Drills       []Drill
	Deps         Deps
	Store        storage.SuiteResultStore
	DrillTimeout time.Duration // per drill, default 30s
	Now          func() time.Time
	Logger       zerolog.Logger
}

// Runner executes the drill suite serially under a suite-wide lock and
// persists the aggregated result atomically.
type Runner struct {
	drills       []Drill
	deps         Deps
	store        storage.SuiteResultStore
	drillTimeout time.Duration
	now          func() time.Time
	logger       zerolog.Logger

	suiteLock chan struct{}
}

// NewRunner creates a runner.
func NewRunner(opts RunnerOptions) *Runner {
	timeout := opts.DrillTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	lock := make(chan struct{}, 1)
	lock <- struct{}{}

	return &Runner{
		drills:       opts.Drills,
		deps:         opts.Deps,
		store:        opts.Store,
		drillTimeout: timeout,
		now:          now,
		logger:       opts.Logger,
		suiteLock:    lock,
	}
}

// Run executes every drill serially, persists the result, and unconditionally
// forces all test-mode flags back to the pre-suite baseline — a safety net on
// top of each drill's own cleanup. Returns the result even when persistence
// fails so callers can still act on it.
func (r *Runner) Run(ctx context.Context) (domain.SuiteResult, error) {
	select {
	case <-r.suiteLock:
	case <-ctx.Done():
		return domain.SuiteResult{}, ctx.Err()
	}
	defer func() { r.suiteLock <- struct{}{} }()

	baseline := r.deps.Overrides.Snapshot()
	defer func() {
		r.deps.Overrides.Restore(baseline)
		if r.deps.Executor != nil {
			r.deps.Executor.ForceClear()
		}
	}()

	suite := domain.SuiteResult{
		RunID:     uuid.NewString(),
		StartedTs: r.now().UnixMilli(),
		AllPassed: true,
	}
	r.logger.Info().Str("run_id", suite.RunID).Int("drills", len(r.drills)).Msg("validation suite started")

	for _, d := range r.drills {
		res := r.runOne(ctx, d)
		suite.Results = append(suite.Results, res)
		suite.AllPassed = suite.AllPassed && res.Passed

		evt := r.logger.Info()
		if !res.Passed {
			evt = r.logger.Warn()
		}
		evt.Str("drill", res.Name).Bool("passed", res.Passed).Str("details", res.Details).Msg("drill finished")
	}
	suite.FinishedTs = r.now().UnixMilli()

	if !suite.AllPassed {
		r.logger.Error().Str("run_id", suite.RunID).Msg("validation suite failed")
	}

	if err := r.store.SaveLatest(ctx, &suite); err != nil {
		return suite, fmt.Errorf("persist suite result: %w", err)
	}
	return suite, nil
}

// runOne executes a single drill with panic recovery and a time bound. A
// drill exceeding its bound is a failure, never a hang.
func (r *Runner) runOne(ctx context.Context, d Drill) domain.DrillResult {
	ctx, cancel := context.WithTimeout(ctx, r.drillTimeout)
	defer cancel()

	done := make(chan domain.DrillResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fail(d.Name(), fmt.Sprintf("panic: %v", rec))
			}
		}()
		done <- d.Run(ctx, r.deps)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return fail(d.Name(), fmt.Sprintf("drill exceeded its %s time bound", r.drillTimeout))
	}
}
