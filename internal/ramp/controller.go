// Package ramp implements the capital ramp controller: an ordered stage
// machine that only moves forward, one stage per tick, and only while the
// live health signals hold.
package ramp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ramp-guard/internal/domain"
	"ramp-guard/internal/storage"
)

// ErrNoStages is returned when a controller is constructed without stages.
var ErrNoStages = errors.New("ramp requires at least one stage")

// HoldThresholds are the ramp-specific bars the metrics must clear for the
// ramp to keep progressing. They are separate from (and typically tighter
// than) the throttle's activation floors.
type HoldThresholds struct {
	MinSharpe        float64
	MinSortino       float64
	DrawdownFloorBps float64 // positive magnitude; pause below -DrawdownFloorBps
}

// HealthInput is everything a tick needs to decide whether metrics hold.
type HealthInput struct {
	ThrottleActive   bool
	Sharpe           float64
	Sortino          float64
	DrawdownBps      float64
	SuiteRun         bool // a validation suite has completed at least once
	SuitePassed      bool
	PromotionsFrozen bool // reconciliation discrepancy freeze
}

// Options configures a Controller.
type Options struct {
	Stages        []domain.RampStage
	Hold          HoldThresholds
	SuiteGate     bool // whether suite failure blocks advancement
	Store         storage.RampStateStore
	PersistBudget int // consecutive persist failures tolerated, default 3
	Now           func() time.Time
	Logger        zerolog.Logger
}

// Controller owns RampState exclusively. Ticks are synchronous on the
// trading cycle and never block on network I/O; persistence failures are
// absorbed by retaining the last good in-memory state.
type Controller struct {
	mu sync.Mutex

	stages        []domain.RampStage
	hold          HoldThresholds
	suiteGate     bool
	store         storage.RampStateStore
	persistBudget int
	now           func() time.Time
	logger        zerolog.Logger

	state           domain.RampState
	loaded          bool
	lastTickTs      int64
	persistFailures int
}

// New creates a controller. Call Load before the first Tick.
func New(opts Options) (*Controller, error) {
	if len(opts.Stages) == 0 {
		return nil, ErrNoStages
	}
	budget := opts.PersistBudget
	if budget == 0 {
		budget = 3
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Controller{
		stages:        opts.Stages,
		hold:          opts.Hold,
		suiteGate:     opts.SuiteGate,
		store:         opts.Store,
		persistBudget: budget,
		now:           now,
		logger:        opts.Logger,
	}, nil
}

// Load restores persisted state, or initializes stage 0 on first start.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.store.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		c.state = domain.RampState{
			StageIndex:   0,
			StageStartTs: c.now().UnixMilli(),
		}
		c.loaded = true
		return c.persistLocked(ctx)
	}
	if err != nil {
		return fmt.Errorf("load ramp state: %w", err)
	}

	if st.StageIndex >= len(c.stages) {
		// Stage list shrank in config; clamp to the final stage.
		c.logger.Warn().Int("persisted", st.StageIndex).Int("max", len(c.stages)-1).Msg("clamping persisted stage index")
		st.StageIndex = len(c.stages) - 1
	}
	c.state = *st
	c.loaded = true
	return nil
}

// Tick evaluates one trading cycle and returns the allowed exposure
// multiplier. The cap never regresses here: unhealthy metrics freeze
// forward progress and restart the stage timer, nothing more.
func (c *Controller) Tick(ctx context.Context, h HealthInput) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		// Fail safe: most conservative cap until Load succeeds.
		return c.stages[0].MaxExposureMultiplier
	}

	nowMs := c.now().UnixMilli()
	changed := false

	holds, reason := c.metricsHold(h)
	if !holds {
		if !c.state.Paused || c.state.PauseReason != reason {
			c.state.Paused = true
			c.state.PauseReason = reason
			changed = true
			c.logger.Warn().Str("reason", string(reason)).Int("stage", c.state.StageIndex).Msg("ramp paused")
		}
		c.lastTickTs = nowMs
		if changed {
			c.persistOrDegrade(ctx)
		}
		return c.currentStage().MaxExposureMultiplier
	}

	if c.state.Paused {
		// The unhealthy period is not credited toward stage duration.
		c.state.Paused = false
		c.state.PauseReason = domain.PauseReasonNone
		c.state.StageStartTs = nowMs
		changed = true
		c.logger.Info().Int("stage", c.state.StageIndex).Msg("ramp resumed, stage timer restarted")
	}

	if c.lastTickTs > 0 {
		c.state.TotalRampHours += float64(nowMs-c.lastTickTs) / float64(time.Hour.Milliseconds())
		changed = true
	}
	c.lastTickTs = nowMs

	// At most one stage advance per tick, even if several durations elapsed
	// while paused.
	stage := c.currentStage()
	elapsed := time.Duration(nowMs-c.state.StageStartTs) * time.Millisecond
	if elapsed >= stage.Duration && c.state.StageIndex < len(c.stages)-1 {
		c.state.StageIndex++
		c.state.StageStartTs = nowMs
		changed = true
		c.logger.Info().Int("stage", c.state.StageIndex).Str("label", c.currentStage().Label).
			Float64("cap", c.currentStage().MaxExposureMultiplier).Msg("ramp advanced")
	}

	if changed {
		c.persistOrDegrade(ctx)
	}
	return c.currentStage().MaxExposureMultiplier
}

// metricsHold applies the hold conditions in a fixed order and reports the
// first failing reason.
func (c *Controller) metricsHold(h HealthInput) (bool, domain.PauseReason) {
	if c.persistFailures > c.persistBudget {
		return false, domain.PauseReasonPersistence
	}
	if h.PromotionsFrozen {
		return false, domain.PauseReasonPromotionFrozen
	}
	if !h.ThrottleActive {
		return false, domain.PauseReasonThrottle
	}
	if h.Sharpe < c.hold.MinSharpe {
		return false, domain.PauseReasonSharpeBelow
	}
	if h.Sortino < c.hold.MinSortino {
		return false, domain.PauseReasonSortinoBelow
	}
	if h.DrawdownBps < -c.hold.DrawdownFloorBps {
		return false, domain.PauseReasonDrawdownFloor
	}
	if c.suiteGate && (!h.SuiteRun || !h.SuitePassed) {
		return false, domain.PauseReasonSuiteFailed
	}
	return true, domain.PauseReasonNone
}

// Reset is the administrative escape hatch: back to stage 0, unpaused.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.StageIndex = 0
	c.state.StageStartTs = c.now().UnixMilli()
	c.state.Paused = false
	c.state.PauseReason = domain.PauseReasonNone
	c.logger.Warn().Msg("ramp administratively reset to stage 0")
	if err := c.persistLocked(ctx); err != nil {
		c.persistFailures++
		return err
	}
	c.persistFailures = 0
	return nil
}

// SetSuiteGate toggles whether a failed validation suite blocks advancement.
func (c *Controller) SetSuiteGate(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suiteGate = enabled
}

// State returns a copy of the current ramp state.
func (c *Controller) State() domain.RampState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cap returns the current stage's exposure multiplier.
func (c *Controller) Cap() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentStage().MaxExposureMultiplier
}

// PersistenceDegraded reports whether the persist retry budget is exhausted.
// Surfaced as an operator alert; forward progress is frozen while true.
func (c *Controller) PersistenceDegraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persistFailures > c.persistBudget
}

func (c *Controller) currentStage() domain.RampStage {
	return c.stages[c.state.StageIndex]
}

// persistOrDegrade writes state, tolerating failures up to the retry budget.
// The in-memory state is always the source of truth; a failed write is
// retried on the next state change.
func (c *Controller) persistOrDegrade(ctx context.Context) {
	if err := c.persistLocked(ctx); err != nil {
		c.persistFailures++
		c.logger.Error().Err(err).Int("consecutive_failures", c.persistFailures).Msg("ramp state persist failed")
		return
	}
	c.persistFailures = 0
}

func (c *Controller) persistLocked(ctx context.Context) error {
	copy := c.state
	if err := c.store.Save(ctx, &copy); err != nil {
		return fmt.Errorf("persist ramp state: %w", err)
	}
	return nil
}
