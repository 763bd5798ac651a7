package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"ramp-guard/internal/domain"
	"ramp-guard/internal/storage"
)

// The singleton aggregates (ramp state, drawdown state, latest suite result)
// live in one key/record table, one logical namespace per aggregate. An
// upsert replaces the whole payload, so readers never observe partial state.
const (
	aggregateRampState   = "ramp_state"
	aggregateDrawdown    = "drawdown_state"
	aggregateSuiteResult = "suite_result"
)

func loadAggregate(ctx context.Context, pool *Pool, name string, out any) error {
	var payload []byte
	row := pool.QueryRow(ctx, `SELECT payload FROM guard_state WHERE name = $1`, name)
	if err := row.Scan(&payload); err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("load %s: %w", name, err)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func saveAggregate(ctx context.Context, pool *Pool, name string, in any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	query := `
		INSERT INTO guard_state (name, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
	`
	if _, err := pool.Exec(ctx, query, name, payload); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// RampStateStore implements storage.RampStateStore using PostgreSQL.
type RampStateStore struct {
	pool *Pool
}

// NewRampStateStore creates a new RampStateStore.
func NewRampStateStore(pool *Pool) *RampStateStore {
	return &RampStateStore{pool: pool}
}

var _ storage.RampStateStore = (*RampStateStore)(nil)

// Load retrieves the persisted ramp state.
func (s *RampStateStore) Load(ctx context.Context) (*domain.RampState, error) {
	var state domain.RampState
	if err := loadAggregate(ctx, s.pool, aggregateRampState, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Save replaces the persisted ramp state.
func (s *RampStateStore) Save(ctx context.Context, st *domain.RampState) error {
	if st == nil {
		return storage.ErrInvalidInput
	}
	return saveAggregate(ctx, s.pool, aggregateRampState, st)
}

// DrawdownStateStore implements storage.DrawdownStateStore using PostgreSQL.
type DrawdownStateStore struct {
	pool *Pool
}

// NewDrawdownStateStore creates a new DrawdownStateStore.
func NewDrawdownStateStore(pool *Pool) *DrawdownStateStore {
	return &DrawdownStateStore{pool: pool}
}

var _ storage.DrawdownStateStore = (*DrawdownStateStore)(nil)

// Load retrieves the persisted drawdown state.
func (s *DrawdownStateStore) Load(ctx context.Context) (*domain.DrawdownState, error) {
	var state domain.DrawdownState
	if err := loadAggregate(ctx, s.pool, aggregateDrawdown, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Save replaces the persisted drawdown state.
func (s *DrawdownStateStore) Save(ctx context.Context, st *domain.DrawdownState) error {
	if st == nil {
		return storage.ErrInvalidInput
	}
	return saveAggregate(ctx, s.pool, aggregateDrawdown, st)
}

// SuiteResultStore implements storage.SuiteResultStore using PostgreSQL.
type SuiteResultStore struct {
	pool *Pool
}

// NewSuiteResultStore creates a new SuiteResultStore.
func NewSuiteResultStore(pool *Pool) *SuiteResultStore {
	return &SuiteResultStore{pool: pool}
}

var _ storage.SuiteResultStore = (*SuiteResultStore)(nil)

// LoadLatest retrieves the last persisted suite result.
func (s *SuiteResultStore) LoadLatest(ctx context.Context) (*domain.SuiteResult, error) {
	var result domain.SuiteResult
	if err := loadAggregate(ctx, s.pool, aggregateSuiteResult, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SaveLatest replaces the latest suite result.
func (s *SuiteResultStore) SaveLatest(ctx context.Context, r *domain.SuiteResult) error {
	if r == nil {
		return storage.ErrInvalidInput
	}
	return saveAggregate(ctx, s.pool, aggregateSuiteResult, r)
}
