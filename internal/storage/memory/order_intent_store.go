package memory

import (
	"context"
	"sort"
	"sync"

	"ramp-guard/internal/domain"
	"ramp-guard/internal/storage"
)

// OrderIntentStore is an in-memory implementation of storage.OrderIntentStore.
type OrderIntentStore struct {
	mu   sync.Mutex
	data map[string]*domain.OrderIntent // keyed by intent_id
}

// NewOrderIntentStore creates a new in-memory order intent store.
func NewOrderIntentStore() *OrderIntentStore {
	return &OrderIntentStore{
		data: make(map[string]*domain.OrderIntent),
	}
}

// Insert adds a new intent. Returns ErrDuplicateKey if intent_id exists.
// Check-and-create happens under one lock, so concurrent submissions with
// the same key cannot both succeed.
func (s *OrderIntentStore) Insert(_ context.Context, intent *domain.OrderIntent) error {
	if intent == nil || intent.IntentID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[intent.IntentID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *intent
	s.data[intent.IntentID] = &copy
	return nil
}

// GetByID retrieves an intent by its ID. Returns ErrNotFound if not exists.
func (s *OrderIntentStore) GetByID(_ context.Context, intentID string) (*domain.OrderIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, exists := s.data[intentID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *intent
	return &copy, nil
}

// Finalize transitions a PENDING intent to a terminal status exactly once.
func (s *OrderIntentStore) Finalize(_ context.Context, intentID string, status domain.IntentStatus, finalizedTs int64, metadata string) error {
	if !status.Terminal() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	intent, exists := s.data[intentID]
	if !exists {
		return storage.ErrNotFound
	}
	if intent.Status.Terminal() {
		return storage.ErrAlreadyFinal
	}

	intent.Status = status
	intent.FinalizedTs = finalizedTs
	intent.Metadata = metadata
	return nil
}

// ListPendingOlderThan retrieves PENDING intents created at or before
// cutoffTs, ordered by created_ts ASC.
func (s *OrderIntentStore) ListPendingOlderThan(_ context.Context, cutoffTs int64) ([]*domain.OrderIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.OrderIntent
	for _, intent := range s.data {
		if intent.Status == domain.IntentPending && intent.CreatedTs <= cutoffTs {
			copy := *intent
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedTs != result[j].CreatedTs {
			return result[i].CreatedTs < result[j].CreatedTs
		}
		return result[i].IntentID < result[j].IntentID
	})

	return result, nil
}

var _ storage.OrderIntentStore = (*OrderIntentStore)(nil)
