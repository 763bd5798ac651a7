package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"ramp-guard/internal/domain"
)

// ErrTestPositionOpen is returned when a synthetic position already exists.
var ErrTestPositionOpen = errors.New("a test position is already open")

// TestPosition is a synthetic position used by the exit-execution drill.
type TestPosition struct {
	Symbol          string
	Direction       domain.Direction
	Size            float64
	EntryPrice      float64
	StopDistanceBps float64
}

// Closer executes the closing order for a position. In the live wiring this
// submits through the execution ledger so drill closes are deduplicated like
// any other action.
type Closer func(ctx context.Context, symbol string, direction domain.Direction, size float64) error

// PaperExecutor holds at most one synthetic test position and closes it
// automatically when a marked price breaches the stop distance.
type PaperExecutor struct {
	mu     sync.Mutex
	pos    *TestPosition
	closer Closer
	logger zerolog.Logger
}

// NewPaperExecutor creates an executor that closes through the given Closer.
func NewPaperExecutor(closer Closer, logger zerolog.Logger) *PaperExecutor {
	return &PaperExecutor{closer: closer, logger: logger}
}

// OpenTest opens a synthetic position.
func (e *PaperExecutor) OpenTest(pos TestPosition) error {
	if pos.Size <= 0 || pos.EntryPrice <= 0 || pos.StopDistanceBps <= 0 {
		return fmt.Errorf("invalid test position: %+v", pos)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pos != nil {
		return ErrTestPositionOpen
	}
	copy := pos
	e.pos = &copy
	e.logger.Info().Str("symbol", pos.Symbol).Float64("entry", pos.EntryPrice).
		Float64("stop_bps", pos.StopDistanceBps).Msg("test position opened")
	return nil
}

// Mark feeds a price to the open position. When the adverse move exceeds the
// stop distance the position is closed through the Closer and removed.
// Returns whether a close happened.
func (e *PaperExecutor) Mark(ctx context.Context, price float64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pos == nil {
		return false, nil
	}

	stopFraction := e.pos.StopDistanceBps / 10000
	var breached bool
	switch e.pos.Direction {
	case domain.DirectionBuy:
		breached = price <= e.pos.EntryPrice*(1-stopFraction)
	case domain.DirectionSell:
		breached = price >= e.pos.EntryPrice*(1+stopFraction)
	}
	if !breached {
		return false, nil
	}

	exit := domain.DirectionSell
	if e.pos.Direction == domain.DirectionSell {
		exit = domain.DirectionBuy
	}
	if err := e.closer(ctx, e.pos.Symbol, exit, e.pos.Size); err != nil {
		return false, fmt.Errorf("close test position %s: %w", e.pos.Symbol, err)
	}

	e.logger.Info().Str("symbol", e.pos.Symbol).Float64("price", price).Msg("test position stopped out")
	e.pos = nil
	return true, nil
}

// HasTestPosition reports whether residual test state remains.
func (e *PaperExecutor) HasTestPosition() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos != nil
}

// ForceClear drops any test position without executing a close. Used by the
// suite-level forced reset and by ForceUnfreeze.
func (e *PaperExecutor) ForceClear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pos != nil {
		e.logger.Warn().Str("symbol", e.pos.Symbol).Msg("test position force-cleared")
		e.pos = nil
	}
}
