// Package scheduler triggers the validation suite on a cron schedule without
// blocking the trading path, keeping the latest result atomically swappable.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"ramp-guard/internal/domain"
	"ramp-guard/internal/observability"
)

// SuiteRunner executes one full validation suite.
type SuiteRunner interface {
	Run(ctx context.Context) (domain.SuiteResult, error)
}

// Options configures a Scheduler.
type Options struct {
	Schedule string // cron spec, e.g. "@every 12h"
	Runner   SuiteRunner
	Metrics  *observability.Metrics // optional
	Logger   zerolog.Logger
}

// Scheduler owns the periodic suite trigger. A run already in progress is
// never overlapped: a firing that arrives mid-run is skipped, not queued.
type Scheduler struct {
	cron    *cron.Cron
	runner  SuiteRunner
	metrics *observability.Metrics
	logger  zerolog.Logger

	baseCtx context.Context
	running atomic.Bool
	latest  atomic.Pointer[domain.SuiteResult]
}

// New creates a scheduler and registers the suite job.
func New(baseCtx context.Context, opts Options) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		runner:  opts.Runner,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		baseCtx: baseCtx,
	}

	if _, err := s.cron.AddFunc(opts.Schedule, s.trigger); err != nil {
		return nil, fmt.Errorf("register suite schedule %q: %w", opts.Schedule, err)
	}
	return s, nil
}

// Start begins firing the schedule.
func (s *Scheduler) Start() {
	s.logger.Info().Msg("suite scheduler started")
	s.cron.Start()
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("suite scheduler stopped")
}

// Latest returns the most recent completed suite result, nil before the
// first run.
func (s *Scheduler) Latest() *domain.SuiteResult {
	return s.latest.Load()
}

// RunNow executes the suite immediately, respecting the no-overlap rule.
func (s *Scheduler) RunNow(ctx context.Context) (*domain.SuiteResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("suite already running")
	}
	defer s.running.Store(false)
	return s.execute(ctx)
}

func (s *Scheduler) trigger() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn().Msg("suite firing skipped, previous run still in progress")
		return
	}
	defer s.running.Store(false)

	if _, err := s.execute(s.baseCtx); err != nil {
		s.logger.Error().Err(err).Msg("scheduled suite run failed")
	}
}

func (s *Scheduler) execute(ctx context.Context) (*domain.SuiteResult, error) {
	started := time.Now()
	result, err := s.runner.Run(ctx)
	if err != nil {
		return nil, err
	}

	s.latest.Store(&result)
	if s.metrics != nil {
		var failed []string
		for _, r := range result.Results {
			if !r.Passed {
				failed = append(failed, r.Name)
			}
		}
		s.metrics.RecordSuite(result.AllPassed, time.Since(started).Seconds(), failed)
	}
	return &result, nil
}
