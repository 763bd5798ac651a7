package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ramp-guard/internal/domain"
	"ramp-guard/internal/storage"
)

// OrderIntentStore implements storage.OrderIntentStore using PostgreSQL.
// The primary key on intent_id makes Insert's check-and-create atomic.
type OrderIntentStore struct {
	pool *Pool
}

// NewOrderIntentStore creates a new OrderIntentStore.
func NewOrderIntentStore(pool *Pool) *OrderIntentStore {
	return &OrderIntentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OrderIntentStore = (*OrderIntentStore)(nil)

// Insert adds a new intent. Returns ErrDuplicateKey if intent_id exists.
func (s *OrderIntentStore) Insert(ctx context.Context, intent *domain.OrderIntent) error {
	if intent == nil || intent.IntentID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO order_intents (
			intent_id, symbol, direction, size, venue, status, created_ts, finalized_ts, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		intent.IntentID,
		intent.Symbol,
		string(intent.Direction),
		intent.Size,
		intent.Venue,
		string(intent.Status),
		intent.CreatedTs,
		intent.FinalizedTs,
		intent.Metadata,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert intent: %w", err)
	}
	return nil
}

// GetByID retrieves an intent by its ID. Returns ErrNotFound if not exists.
func (s *OrderIntentStore) GetByID(ctx context.Context, intentID string) (*domain.OrderIntent, error) {
	query := `
		SELECT intent_id, symbol, direction, size, venue, status, created_ts, finalized_ts, metadata
		FROM order_intents
		WHERE intent_id = $1
	`

	row := s.pool.QueryRow(ctx, query, intentID)
	intent, err := scanIntent(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get intent by id: %w", err)
	}
	return intent, nil
}

// Finalize transitions a PENDING intent to a terminal status exactly once.
// The guarded UPDATE only matches PENDING rows, so a terminal record can
// never be overwritten regardless of concurrent finalizers.
func (s *OrderIntentStore) Finalize(ctx context.Context, intentID string, status domain.IntentStatus, finalizedTs int64, metadata string) error {
	if !status.Terminal() {
		return fmt.Errorf("finalize to %s: %w", status, storage.ErrInvalidInput)
	}

	query := `
		UPDATE order_intents
		SET status = $2, finalized_ts = $3, metadata = $4
		WHERE intent_id = $1 AND status = $5
	`

	tag, err := s.pool.Exec(ctx, query, intentID, string(status), finalizedTs, metadata, string(domain.IntentPending))
	if err != nil {
		return fmt.Errorf("finalize intent: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing matched: the intent is either unknown or already terminal.
	existing, err := s.GetByID(ctx, intentID)
	if err != nil {
		return err
	}
	if existing.Status.Terminal() {
		return storage.ErrAlreadyFinal
	}
	return fmt.Errorf("finalize intent %s in status %s: %w", intentID, existing.Status, storage.ErrInvalidInput)
}

// ListPendingOlderThan retrieves all PENDING intents created at or before
// cutoffTs, ordered by created_ts ASC.
func (s *OrderIntentStore) ListPendingOlderThan(ctx context.Context, cutoffTs int64) ([]*domain.OrderIntent, error) {
	query := `
		SELECT intent_id, symbol, direction, size, venue, status, created_ts, finalized_ts, metadata
		FROM order_intents
		WHERE status = $1 AND created_ts <= $2
		ORDER BY created_ts ASC, intent_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(domain.IntentPending), cutoffTs)
	if err != nil {
		return nil, fmt.Errorf("list pending intents: %w", err)
	}
	defer rows.Close()

	var intents []*domain.OrderIntent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intents: %w", err)
	}
	return intents, nil
}

func scanIntent(row pgx.Row) (*domain.OrderIntent, error) {
	var intent domain.OrderIntent
	var direction, status string

	err := row.Scan(
		&intent.IntentID,
		&intent.Symbol,
		&direction,
		&intent.Size,
		&intent.Venue,
		&status,
		&intent.CreatedTs,
		&intent.FinalizedTs,
		&intent.Metadata,
	)
	if err != nil {
		return nil, err
	}

	intent.Direction = domain.Direction(direction)
	intent.Status = domain.IntentStatus(status)
	return &intent, nil
}
