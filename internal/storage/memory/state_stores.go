package memory

import (
	"context"
	"sync"

	"ramp-guard/internal/domain"
	"ramp-guard/internal/storage"
)

// RampStateStore is an in-memory implementation of storage.RampStateStore.
type RampStateStore struct {
	mu    sync.RWMutex
	state *domain.RampState
}

// NewRampStateStore creates a new in-memory ramp state store.
func NewRampStateStore() *RampStateStore {
	return &RampStateStore{}
}

// Load retrieves the persisted state. Returns ErrNotFound on first start.
func (s *RampStateStore) Load(_ context.Context) (*domain.RampState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return nil, storage.ErrNotFound
	}
	copy := *s.state
	return &copy, nil
}

// Save atomically replaces the persisted state.
func (s *RampStateStore) Save(_ context.Context, st *domain.RampState) error {
	if st == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *st
	s.state = &copy
	return nil
}

var _ storage.RampStateStore = (*RampStateStore)(nil)

// DrawdownStateStore is an in-memory implementation of storage.DrawdownStateStore.
type DrawdownStateStore struct {
	mu    sync.RWMutex
	state *domain.DrawdownState
}

// NewDrawdownStateStore creates a new in-memory drawdown state store.
func NewDrawdownStateStore() *DrawdownStateStore {
	return &DrawdownStateStore{}
}

// Load retrieves the persisted state. Returns ErrNotFound on first start.
func (s *DrawdownStateStore) Load(_ context.Context) (*domain.DrawdownState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return nil, storage.ErrNotFound
	}
	copy := *s.state
	return &copy, nil
}

// Save atomically replaces the persisted state.
func (s *DrawdownStateStore) Save(_ context.Context, st *domain.DrawdownState) error {
	if st == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *st
	s.state = &copy
	return nil
}

var _ storage.DrawdownStateStore = (*DrawdownStateStore)(nil)

// SuiteResultStore is an in-memory implementation of storage.SuiteResultStore.
type SuiteResultStore struct {
	mu     sync.RWMutex
	latest *domain.SuiteResult
}

// NewSuiteResultStore creates a new in-memory suite result store.
func NewSuiteResultStore() *SuiteResultStore {
	return &SuiteResultStore{}
}

// LoadLatest retrieves the last persisted suite result.
func (s *SuiteResultStore) LoadLatest(_ context.Context) (*domain.SuiteResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latest == nil {
		return nil, storage.ErrNotFound
	}

	copy := *s.latest
	copy.Results = append([]domain.DrillResult(nil), s.latest.Results...)
	return &copy, nil
}

// SaveLatest atomically replaces the latest suite result.
func (s *SuiteResultStore) SaveLatest(_ context.Context, r *domain.SuiteResult) error {
	if r == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *r
	copy.Results = append([]domain.DrillResult(nil), r.Results...)
	s.latest = &copy
	return nil
}

var _ storage.SuiteResultStore = (*SuiteResultStore)(nil)
