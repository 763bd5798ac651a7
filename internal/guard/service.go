package guard

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"ramp-guard/internal/domain"
	"ramp-guard/internal/drawdown"
	"ramp-guard/internal/gate"
	"ramp-guard/internal/ledger"
	"ramp-guard/internal/observability"
	"ramp-guard/internal/ramp"
	"ramp-guard/internal/storage"
	"ramp-guard/internal/throttle"
)

// ErrTradingFrozen is returned by Submit while the kill-switch freeze is on.
var ErrTradingFrozen = errors.New("trading frozen by kill-switch")

// SizingPolicy holds the drawdown soft-block parameters.
type SizingPolicy struct {
	SoftThresholdBps float64
	ReductionPct     float64
}

// ServiceOptions wires the guard service.
type ServiceOptions struct {
	Throttle   *throttle.Throttle
	Gate       *gate.Evaluator
	Drawdown   *drawdown.Monitor
	Ramp       *ramp.Controller
	Ledger     *ledger.Ledger
	Overrides  *Overrides
	KillSwitch *KillSwitchDetector
	Regime     *RegimeDetector
	Freeze     *PromotionFreeze
	Profiles   *ProfileSelector
	Executor   *PaperExecutor

	SuiteStore    storage.SuiteResultStore
	DrawdownStore storage.DrawdownStateStore

	// History receives every consumed snapshot, best effort, off the tick
	// path. Optional.
	History storage.SnapshotHistoryStore

	Sizing  SizingPolicy
	Venue   string
	Metrics *observability.Metrics // optional
	Logger  zerolog.Logger
}

// Service ties the protective components to the trading cycle: it consumes
// metric snapshots, drives the ramp tick, detects the kill-switch, gates
// promotions, and sizes/deduplicates order submissions.
type Service struct {
	throttle   *throttle.Throttle
	gate       *gate.Evaluator
	drawdown   *drawdown.Monitor
	ramp       *ramp.Controller
	ledger     *ledger.Ledger
	overrides  *Overrides
	killSwitch *KillSwitchDetector
	regime     *RegimeDetector
	freeze     *PromotionFreeze
	profiles   *ProfileSelector
	executor   *PaperExecutor

	suiteStore    storage.SuiteResultStore
	drawdownStore storage.DrawdownStateStore
	history       storage.SnapshotHistoryStore

	sizing  SizingPolicy
	venue   string
	metrics *observability.Metrics
	logger  zerolog.Logger

	tradingFrozen atomic.Bool
}

// NewService creates the composed guard service.
func NewService(opts ServiceOptions) *Service {
	return &Service{
		throttle:      opts.Throttle,
		gate:          opts.Gate,
		drawdown:      opts.Drawdown,
		ramp:          opts.Ramp,
		ledger:        opts.Ledger,
		overrides:     opts.Overrides,
		killSwitch:    opts.KillSwitch,
		regime:        opts.Regime,
		freeze:        opts.Freeze,
		profiles:      opts.Profiles,
		executor:      opts.Executor,
		suiteStore:    opts.SuiteStore,
		drawdownStore: opts.DrawdownStore,
		history:       opts.History,
		sizing:        opts.Sizing,
		venue:         opts.Venue,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}
}

// Recover runs ledger startup reconciliation and records any discrepancies
// on the promotion freeze. Must run before the first tick.
func (s *Service) Recover(ctx context.Context) (ledger.RecoveryReport, error) {
	report, err := s.ledger.RecoverOnStartup(ctx)
	if err != nil {
		return report, err
	}
	if report.Discrepancies > 0 {
		s.freeze.RecordRecovered(report.Discrepancies)
		if s.metrics != nil {
			s.metrics.Discrepancies.Add(float64(report.Discrepancies))
		}
		s.logger.Warn().Int("discrepancies", report.Discrepancies).Msg("promotions frozen after reconciliation")
	}
	return report, nil
}

// Run consumes snapshots until the channel closes or the context ends.
func (s *Service) Run(ctx context.Context, snapshots <-chan domain.MetricSnapshot) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			s.OnSnapshot(ctx, snap)
		}
	}
}

// OnSnapshot is one trading cycle: in-memory evaluations plus an occasional
// persistence write, never blocking on network I/O.
func (s *Service) OnSnapshot(ctx context.Context, snap domain.MetricSnapshot) float64 {
	s.throttle.Observe(snap)
	s.regime.Tick()

	frozen := s.killSwitch.Detect()
	if frozen != s.tradingFrozen.Load() {
		s.tradingFrozen.Store(frozen)
		if frozen {
			s.logger.Error().Msg("kill-switch active, refusing new submissions")
		} else {
			s.logger.Info().Msg("kill-switch cleared, submissions resume")
		}
	}

	suiteRun, suitePassed := s.latestSuite(ctx)
	throttleActive := s.throttle.Evaluate()
	promoFrozen := s.freeze.Frozen()

	cap := s.ramp.Tick(ctx, ramp.HealthInput{
		ThrottleActive:   throttleActive,
		Sharpe:           snap.Sharpe,
		Sortino:          snap.Sortino,
		DrawdownBps:      snap.DrawdownBps,
		SuiteRun:         suiteRun,
		SuitePassed:      suitePassed,
		PromotionsFrozen: promoFrozen,
	})

	if s.metrics != nil {
		s.metrics.SnapshotsTotal.Inc()
		st := s.ramp.State()
		s.metrics.SetRampState(st.StageIndex, cap, st.Paused)
		s.metrics.SetFlags(throttleActive, frozen, promoFrozen)
	}

	if s.history != nil {
		go func() {
			if err := s.history.Append(context.WithoutCancel(ctx), &snap); err != nil {
				s.logger.Warn().Err(err).Msg("snapshot history append failed")
			}
		}()
	}
	return cap
}

// latestSuite reads the last persisted suite result. Missing is not an
// error, it simply means the suite gate (when enabled) holds the ramp.
func (s *Service) latestSuite(ctx context.Context) (run, passed bool) {
	res, err := s.suiteStore.LoadLatest(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return false, false
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("suite result read failed, treating as not run")
		return false, false
	}
	return true, res.AllPassed
}

// EvaluatePromotion applies the statistical gates unless promotions are
// frozen by reconciliation discrepancies.
func (s *Service) EvaluatePromotion(m domain.PromotionMetrics) gate.Decision {
	if s.freeze.Frozen() {
		return gate.Decision{Promote: false, FailReasons: []string{"promotions_frozen:reconciliation discrepancies pending"}}
	}
	return s.gate.Evaluate(m)
}

// Submit sizes and deduplicates one order intent. The base size is scaled by
// the active risk profile, the ramp cap, and the drawdown soft block before
// reaching the ledger.
func (s *Service) Submit(ctx context.Context, symbol string, direction domain.Direction, baseSize float64) (string, error) {
	if s.tradingFrozen.Load() {
		return "", ErrTradingFrozen
	}

	profile := s.profiles.Active()
	size := baseSize * profile.SizeMultiplier * s.ramp.Cap()
	size, softBlocked := s.drawdown.AdjustSize(size, s.sizing.SoftThresholdBps, s.sizing.ReductionPct)
	if softBlocked {
		s.logger.Warn().Str("symbol", symbol).Float64("size", size).Msg("drawdown soft block reduced order size")
	}

	id, err := s.ledger.Submit(ctx, symbol, direction, size, s.venue)
	if s.metrics != nil {
		switch {
		case err == nil:
			s.metrics.IntentsTotal.WithLabelValues("accepted").Inc()
		case errors.Is(err, ledger.ErrDuplicatePending), errors.Is(err, ledger.ErrDuplicateTerminal):
			s.metrics.IntentsTotal.WithLabelValues("duplicate").Inc()
		default:
			s.metrics.IntentsTotal.WithLabelValues("error").Inc()
		}
	}
	if err != nil {
		return id, err
	}
	return id, nil
}

// Finalize records an intent's terminal outcome.
func (s *Service) Finalize(ctx context.Context, intentID string, status domain.IntentStatus, metadata string) error {
	return s.ledger.Finalize(ctx, intentID, status, metadata)
}

// UpdatePortfolioValue feeds the drawdown monitor and persists its state.
func (s *Service) UpdatePortfolioValue(ctx context.Context, value float64) domain.DrawdownState {
	state := s.drawdown.Update(value)
	if err := s.drawdownStore.Save(ctx, &state); err != nil {
		s.logger.Warn().Err(err).Msg("drawdown state persist failed")
	}
	return state
}

// TradingFrozen reports whether submissions are currently refused.
func (s *Service) TradingFrozen() bool {
	return s.tradingFrozen.Load()
}

// ResetRamp forces the ramp back to stage 0.
func (s *Service) ResetRamp(ctx context.Context) error {
	return s.ramp.Reset(ctx)
}

// SetManualRampGate toggles whether suite failure blocks ramp advancement.
func (s *Service) SetManualRampGate(enabled bool) {
	s.ramp.SetSuiteGate(enabled)
	s.logger.Warn().Bool("enabled", enabled).Msg("manual ramp gate toggled")
}

// ForceUnfreeze clears every test-mode and protective flag: the override
// registry, the recovered discrepancy count, the kill-switch freeze, and any
// residual test position. Emergency use only.
func (s *Service) ForceUnfreeze() {
	s.overrides.ForceReset()
	s.freeze.ClearRecovered()
	s.tradingFrozen.Store(false)
	if s.executor != nil {
		s.executor.ForceClear()
	}
	s.logger.Warn().Msg("force-unfreeze: all protective flags cleared")
}
