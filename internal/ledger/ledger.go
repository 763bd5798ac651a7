// Package ledger implements the idempotent execution ledger: every action
// intent is deduplicated by a deterministic key, persisted before execution,
// finalized exactly once, and reconciled against authoritative external
// state after a crash.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ramp-guard/internal/domain"
	"ramp-guard/internal/idhash"
	"ramp-guard/internal/storage"
)

// Ledger errors.
var (
	// ErrDuplicatePending is returned when a submission collides with a
	// still-pending intent in the same time bucket. This is the steady-state
	// dedup signal, not an exceptional condition.
	ErrDuplicatePending = errors.New("duplicate_pending")

	// ErrDuplicateTerminal is returned when a submission collides with an
	// already-finalized intent in the same time bucket.
	ErrDuplicateTerminal = errors.New("duplicate_terminal")
)

// TrueState is the authoritative external outcome of an intent.
type TrueState string

const (
	TrueStateExecuted TrueState = "EXECUTED"
	TrueStateFailed   TrueState = "FAILED"
	TrueStateAbsent   TrueState = "ABSENT"
)

// StateAuthority answers what actually happened to an intent, from the
// venue's point of view. Consulted only during reconciliation.
type StateAuthority interface {
	TrueState(ctx context.Context, intentID string) (TrueState, error)
}

// Options configures a Ledger.
type Options struct {
	Store             storage.OrderIntentStore
	Authority         StateAuthority
	BucketWidth       time.Duration // dedup bucket, default 1m
	RecoveryThreshold time.Duration // pending older than this is reconciled, default 5m
	Now               func() time.Time
	Logger            zerolog.Logger
}

// Ledger deduplicates and tracks order intents.
type Ledger struct {
	store             storage.OrderIntentStore
	authority         StateAuthority
	bucketMs          int64
	recoveryThreshold time.Duration
	now               func() time.Time
	logger            zerolog.Logger
}

// New creates a ledger.
func New(opts Options) *Ledger {
	bucket := opts.BucketWidth
	if bucket == 0 {
		bucket = time.Minute
	}
	threshold := opts.RecoveryThreshold
	if threshold == 0 {
		threshold = 5 * time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Ledger{
		store:             opts.Store,
		authority:         opts.Authority,
		bucketMs:          bucket.Milliseconds(),
		recoveryThreshold: threshold,
		now:               now,
		logger:            opts.Logger,
	}
}

// Submit registers a new action intent and returns its deterministic id.
// Exactly one concurrent submission for a given (symbol, direction, size,
// venue, bucket) wins; every other caller observes ErrDuplicatePending or
// ErrDuplicateTerminal. The atomicity lives in the store's check-and-create.
func (l *Ledger) Submit(ctx context.Context, symbol string, direction domain.Direction, size float64, venue string) (string, error) {
	nowMs := l.now().UnixMilli()
	intentID := idhash.ComputeIntentID(symbol, string(direction), size, venue, nowMs, l.bucketMs)

	intent := &domain.OrderIntent{
		IntentID:  intentID,
		Symbol:    symbol,
		Direction: direction,
		Size:      size,
		Venue:     venue,
		Status:    domain.IntentPending,
		CreatedTs: nowMs,
	}

	err := l.store.Insert(ctx, intent)
	if err == nil {
		return intentID, nil
	}
	if !errors.Is(err, storage.ErrDuplicateKey) {
		return "", fmt.Errorf("insert intent: %w", err)
	}

	existing, getErr := l.store.GetByID(ctx, intentID)
	if getErr != nil {
		return "", fmt.Errorf("inspect colliding intent: %w", getErr)
	}

	if existing.Status == domain.IntentPending {
		l.logger.Warn().Str("intent_id", intentID).Str("symbol", symbol).Msg("rejected duplicate pending intent")
		return intentID, ErrDuplicatePending
	}

	l.logger.Warn().Str("intent_id", intentID).Str("status", string(existing.Status)).Msg("rejected duplicate of finalized intent")
	return intentID, ErrDuplicateTerminal
}

// Finalize transitions an intent to EXECUTED or FAILED exactly once.
// Finalizing an already-terminal intent is a no-op logged as an anomaly,
// never a silent overwrite.
func (l *Ledger) Finalize(ctx context.Context, intentID string, status domain.IntentStatus, metadata string) error {
	if status != domain.IntentExecuted && status != domain.IntentFailed {
		return fmt.Errorf("finalize %s: %w: status %s", intentID, storage.ErrInvalidInput, status)
	}

	err := l.store.Finalize(ctx, intentID, status, l.now().UnixMilli(), metadata)
	if errors.Is(err, storage.ErrAlreadyFinal) {
		l.logger.Error().Str("intent_id", intentID).Str("attempted_status", string(status)).
			Msg("anomaly: finalize on already-terminal intent ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("finalize intent %s: %w", intentID, err)
	}
	return nil
}

// Get returns the stored intent.
func (l *Ledger) Get(ctx context.Context, intentID string) (*domain.OrderIntent, error) {
	return l.store.GetByID(ctx, intentID)
}

// RecoveryReport summarizes one startup reconciliation pass.
type RecoveryReport struct {
	Scanned       int
	Executed      int
	Failed        int
	Abandoned     int
	Discrepancies int
}

// RecoverOnStartup resolves every PENDING intent older than the recovery
// threshold against the authoritative external state. This is the only path
// by which a crash mid-submission is resolved; each intent is reconciled
// exactly once. An intent that actually executed counts as a discrepancy:
// local state said nothing happened.
func (l *Ledger) RecoverOnStartup(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	cutoff := l.now().Add(-l.recoveryThreshold).UnixMilli()
	stale, err := l.store.ListPendingOlderThan(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("list stale pending intents: %w", err)
	}
	report.Scanned = len(stale)

	for _, intent := range stale {
		trueState, err := l.authority.TrueState(ctx, intent.IntentID)
		if err != nil {
			// Unknown truth is a discrepancy; the intent stays pending and
			// the caller freezes promotions.
			report.Discrepancies++
			l.logger.Error().Err(err).Str("intent_id", intent.IntentID).Msg("authoritative state lookup failed")
			continue
		}

		var status domain.IntentStatus
		switch trueState {
		case TrueStateExecuted:
			status = domain.IntentExecuted
			report.Executed++
			report.Discrepancies++
			l.logger.Warn().Str("intent_id", intent.IntentID).Msg("reconciliation: intent executed while ledger said pending")
		case TrueStateFailed:
			status = domain.IntentFailed
			report.Failed++
		case TrueStateAbsent:
			status = domain.IntentAbandoned
			report.Abandoned++
		default:
			report.Discrepancies++
			l.logger.Error().Str("intent_id", intent.IntentID).Str("state", string(trueState)).Msg("unknown authoritative state")
			continue
		}

		meta := fmt.Sprintf("reconciled:%s", trueState)
		if err := l.store.Finalize(ctx, intent.IntentID, status, l.now().UnixMilli(), meta); err != nil {
			if errors.Is(err, storage.ErrAlreadyFinal) {
				continue
			}
			return report, fmt.Errorf("reconcile intent %s: %w", intent.IntentID, err)
		}
		l.logger.Info().Str("intent_id", intent.IntentID).Str("status", string(status)).Msg("stale intent reconciled")
	}

	return report, nil
}
