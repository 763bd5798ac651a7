package storage

import (
	"context"

	"ramp-guard/internal/domain"
)

// RampStateStore persists the single RampState aggregate.
// Save must be atomic with respect to concurrent readers and crashes:
// a reader never observes a partially written state.
type RampStateStore interface {
	// Load retrieves the persisted state. Returns ErrNotFound when the
	// controller has never persisted (first start).
	Load(ctx context.Context) (*domain.RampState, error)

	// Save atomically replaces the persisted state.
	Save(ctx context.Context, s *domain.RampState) error
}

// DrawdownStateStore persists the single DrawdownState aggregate with the
// same atomic-replace semantics as RampStateStore.
type DrawdownStateStore interface {
	Load(ctx context.Context) (*domain.DrawdownState, error)
	Save(ctx context.Context, s *domain.DrawdownState) error
}

// SuiteResultStore persists the most recent validation suite result.
type SuiteResultStore interface {
	// LoadLatest retrieves the last persisted suite result. Returns
	// ErrNotFound when no suite has ever completed.
	LoadLatest(ctx context.Context) (*domain.SuiteResult, error)

	// SaveLatest atomically replaces the latest suite result.
	SaveLatest(ctx context.Context, r *domain.SuiteResult) error
}

// OrderIntentStore provides access to the order intent registry.
type OrderIntentStore interface {
	// Insert adds a new intent. Returns ErrDuplicateKey if intent_id exists.
	// The existence check and the create are one atomic operation.
	Insert(ctx context.Context, intent *domain.OrderIntent) error

	// GetByID retrieves an intent by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, intentID string) (*domain.OrderIntent, error)

	// Finalize transitions a PENDING intent to a terminal status exactly once.
	// Returns ErrNotFound for an unknown id and ErrAlreadyFinal when the
	// intent is already terminal; the stored record is never overwritten.
	Finalize(ctx context.Context, intentID string, status domain.IntentStatus, finalizedTs int64, metadata string) error

	// ListPendingOlderThan retrieves all PENDING intents created at or before
	// cutoffTs, ordered by created_ts ASC. Used by startup reconciliation.
	ListPendingOlderThan(ctx context.Context, cutoffTs int64) ([]*domain.OrderIntent, error)
}

// SnapshotHistoryStore appends consumed metric snapshots for dashboards.
// Append-only; best effort on the hot path.
type SnapshotHistoryStore interface {
	Append(ctx context.Context, s *domain.MetricSnapshot) error
}

// SuiteHistoryStore appends completed suite results for dashboards.
type SuiteHistoryStore interface {
	Append(ctx context.Context, r *domain.SuiteResult) error
}
