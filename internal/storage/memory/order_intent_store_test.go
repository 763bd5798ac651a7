package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"ramp-guard/internal/domain"
	"ramp-guard/internal/storage"
)

func TestOrderIntentStore_InsertAndGet(t *testing.T) {
	store := NewOrderIntentStore()
	ctx := context.Background()

	intent := &domain.OrderIntent{
		IntentID:  "i1",
		Symbol:    "BTC-USD",
		Direction: domain.DirectionBuy,
		Size:      1.5,
		Venue:     "paper",
		Status:    domain.IntentPending,
		CreatedTs: 1000,
	}

	if err := store.Insert(ctx, intent); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "i1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Symbol != "BTC-USD" || got.Status != domain.IntentPending {
		t.Errorf("Unexpected intent: %+v", got)
	}
}

func TestOrderIntentStore_DuplicateKey(t *testing.T) {
	store := NewOrderIntentStore()
	ctx := context.Background()

	intent := &domain.OrderIntent{IntentID: "i1", Status: domain.IntentPending}
	if err := store.Insert(ctx, intent); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, intent)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestOrderIntentStore_ConcurrentInsertExactlyOneWins(t *testing.T) {
	store := NewOrderIntentStore()
	ctx := context.Background()

	const n = 32
	var wins, dups int64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Insert(ctx, &domain.OrderIntent{IntentID: "same", Status: domain.IntentPending})
			switch {
			case err == nil:
				atomic.AddInt64(&wins, 1)
			case errors.Is(err, storage.ErrDuplicateKey):
				atomic.AddInt64(&dups, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly one winning insert, got %d", wins)
	}
	if dups != n-1 {
		t.Errorf("Expected %d duplicates, got %d", n-1, dups)
	}
}

func TestOrderIntentStore_FinalizeOnce(t *testing.T) {
	store := NewOrderIntentStore()
	ctx := context.Background()

	intent := &domain.OrderIntent{IntentID: "i1", Status: domain.IntentPending, CreatedTs: 100}
	if err := store.Insert(ctx, intent); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := store.Finalize(ctx, "i1", domain.IntentExecuted, 200, "filled"); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	err := store.Finalize(ctx, "i1", domain.IntentFailed, 300, "late")
	if !errors.Is(err, storage.ErrAlreadyFinal) {
		t.Errorf("Expected ErrAlreadyFinal, got %v", err)
	}

	got, _ := store.GetByID(ctx, "i1")
	if got.Status != domain.IntentExecuted || got.FinalizedTs != 200 {
		t.Errorf("Terminal record was overwritten: %+v", got)
	}
}

func TestOrderIntentStore_FinalizeRejectsNonTerminal(t *testing.T) {
	store := NewOrderIntentStore()
	ctx := context.Background()

	if err := store.Insert(ctx, &domain.OrderIntent{IntentID: "i1", Status: domain.IntentPending}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	err := store.Finalize(ctx, "i1", domain.IntentPending, 100, "")
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestOrderIntentStore_ListPendingOlderThan(t *testing.T) {
	store := NewOrderIntentStore()
	ctx := context.Background()

	intents := []*domain.OrderIntent{
		{IntentID: "old1", Status: domain.IntentPending, CreatedTs: 100},
		{IntentID: "old2", Status: domain.IntentPending, CreatedTs: 200},
		{IntentID: "fresh", Status: domain.IntentPending, CreatedTs: 900},
		{IntentID: "done", Status: domain.IntentExecuted, CreatedTs: 100},
	}
	for _, it := range intents {
		if err := store.Insert(ctx, it); err != nil {
			t.Fatalf("Insert %s failed: %v", it.IntentID, err)
		}
	}

	pending, err := store.ListPendingOlderThan(ctx, 500)
	if err != nil {
		t.Fatalf("ListPendingOlderThan failed: %v", err)
	}

	if len(pending) != 2 {
		t.Fatalf("Expected 2 stale pending intents, got %d", len(pending))
	}
	if pending[0].IntentID != "old1" || pending[1].IntentID != "old2" {
		t.Errorf("Expected created_ts ASC ordering, got %s, %s", pending[0].IntentID, pending[1].IntentID)
	}
}

func TestOrderIntentStore_NotFound(t *testing.T) {
	store := NewOrderIntentStore()
	ctx := context.Background()

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := store.Finalize(ctx, "missing", domain.IntentFailed, 1, ""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
