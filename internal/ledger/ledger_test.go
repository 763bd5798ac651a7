package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ramp-guard/internal/domain"
	"ramp-guard/internal/storage"
	"ramp-guard/internal/storage/memory"
)

// fakeAuthority maps intent ids to a fixed authoritative state.
type fakeAuthority struct {
	states map[string]TrueState
	err    error
}

func (f *fakeAuthority) TrueState(_ context.Context, intentID string) (TrueState, error) {
	if f.err != nil {
		return "", f.err
	}
	if s, ok := f.states[intentID]; ok {
		return s, nil
	}
	return TrueStateAbsent, nil
}

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func newTestLedger(store storage.OrderIntentStore, auth StateAuthority, nowMs int64) *Ledger {
	return New(Options{
		Store:             store,
		Authority:         auth,
		BucketWidth:       time.Minute,
		RecoveryThreshold: 5 * time.Minute,
		Now:               fixedClock(nowMs),
		Logger:            zerolog.Nop(),
	})
}

func TestSubmit_CreatesPendingIntent(t *testing.T) {
	store := memory.NewOrderIntentStore()
	l := newTestLedger(store, &fakeAuthority{}, 1_000_000)
	ctx := context.Background()

	id, err := l.Submit(ctx, "BTC-USD", domain.DirectionBuy, 1.0, "paper")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	got, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != domain.IntentPending {
		t.Errorf("Status: got %s, want PENDING", got.Status)
	}
	if got.CreatedTs != 1_000_000 {
		t.Errorf("CreatedTs: got %d, want 1000000", got.CreatedTs)
	}
}

func TestSubmit_DuplicateInBucketRejected(t *testing.T) {
	store := memory.NewOrderIntentStore()
	l := newTestLedger(store, &fakeAuthority{}, 1_000_000)
	ctx := context.Background()

	first, err := l.Submit(ctx, "BTC-USD", domain.DirectionBuy, 1.0, "paper")
	if err != nil {
		t.Fatalf("First submit failed: %v", err)
	}

	second, err := l.Submit(ctx, "BTC-USD", domain.DirectionBuy, 1.0, "paper")
	if !errors.Is(err, ErrDuplicatePending) {
		t.Fatalf("Expected ErrDuplicatePending, got %v", err)
	}
	if second != first {
		t.Errorf("Duplicate must report the colliding id: got %s, want %s", second, first)
	}
}

func TestSubmit_ConcurrentIdenticalExactlyOneWins(t *testing.T) {
	store := memory.NewOrderIntentStore()
	l := newTestLedger(store, &fakeAuthority{}, 1_000_000)
	ctx := context.Background()

	const n = 32
	var wins, dups int64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Submit(ctx, "ETH-USD", domain.DirectionSell, 2.0, "paper")
			switch {
			case err == nil:
				atomic.AddInt64(&wins, 1)
			case errors.Is(err, ErrDuplicatePending):
				atomic.AddInt64(&dups, 1)
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly one winner, got %d", wins)
	}
	if dups != n-1 {
		t.Errorf("Expected %d duplicate_pending rejections, got %d", n-1, dups)
	}
}

func TestSubmit_NextBucketIsFreshIntent(t *testing.T) {
	store := memory.NewOrderIntentStore()
	ctx := context.Background()

	early := newTestLedger(store, &fakeAuthority{}, 59_000)
	late := newTestLedger(store, &fakeAuthority{}, 61_000)

	if _, err := early.Submit(ctx, "BTC-USD", domain.DirectionBuy, 1.0, "paper"); err != nil {
		t.Fatalf("First submit failed: %v", err)
	}
	if _, err := late.Submit(ctx, "BTC-USD", domain.DirectionBuy, 1.0, "paper"); err != nil {
		t.Errorf("Submit in next bucket should succeed, got %v", err)
	}
}

func TestFinalize_ExactlyOnce(t *testing.T) {
	store := memory.NewOrderIntentStore()
	l := newTestLedger(store, &fakeAuthority{}, 1_000_000)
	ctx := context.Background()

	id, err := l.Submit(ctx, "BTC-USD", domain.DirectionBuy, 1.0, "paper")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := l.Finalize(ctx, id, domain.IntentExecuted, "fill@100"); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	// Second finalize is an anomaly no-op, not an error, not an overwrite.
	if err := l.Finalize(ctx, id, domain.IntentFailed, "late"); err != nil {
		t.Fatalf("Repeat finalize should be a no-op, got %v", err)
	}

	got, _ := store.GetByID(ctx, id)
	if got.Status != domain.IntentExecuted || got.Metadata != "fill@100" {
		t.Errorf("Terminal record was overwritten: %+v", got)
	}
}

func TestFinalize_RejectsNonTerminalStatus(t *testing.T) {
	store := memory.NewOrderIntentStore()
	l := newTestLedger(store, &fakeAuthority{}, 1_000_000)
	ctx := context.Background()

	id, _ := l.Submit(ctx, "BTC-USD", domain.DirectionBuy, 1.0, "paper")

	if err := l.Finalize(ctx, id, domain.IntentAbandoned, ""); err == nil {
		t.Error("Expected error: ABANDONED is reserved for reconciliation")
	}
	if err := l.Finalize(ctx, id, domain.IntentPending, ""); err == nil {
		t.Error("Expected error for non-terminal status")
	}
}

func TestSubmit_AfterFinalizeSameBucketRejectedTerminal(t *testing.T) {
	store := memory.NewOrderIntentStore()
	l := newTestLedger(store, &fakeAuthority{}, 1_000_000)
	ctx := context.Background()

	id, _ := l.Submit(ctx, "BTC-USD", domain.DirectionBuy, 1.0, "paper")
	if err := l.Finalize(ctx, id, domain.IntentExecuted, ""); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	_, err := l.Submit(ctx, "BTC-USD", domain.DirectionBuy, 1.0, "paper")
	if !errors.Is(err, ErrDuplicateTerminal) {
		t.Errorf("Expected ErrDuplicateTerminal, got %v", err)
	}
}

func TestRecoverOnStartup_ResolvesStalePending(t *testing.T) {
	store := memory.NewOrderIntentStore()
	ctx := context.Background()

	seedIntent := func(id string, createdTs int64) {
		if err := store.Insert(ctx, &domain.OrderIntent{
			IntentID: id, Symbol: "BTC-USD", Direction: domain.DirectionBuy,
			Status: domain.IntentPending, CreatedTs: createdTs,
		}); err != nil {
			t.Fatalf("Seed insert %s failed: %v", id, err)
		}
	}

	// Created at t=0; recovery runs at t=10m with a 5m threshold.
	seedIntent("was-executed", 0)
	seedIntent("was-failed", 0)
	seedIntent("never-happened", 0)
	seedIntent("too-fresh", 9*time.Minute.Milliseconds())

	auth := &fakeAuthority{states: map[string]TrueState{
		"was-executed": TrueStateExecuted,
		"was-failed":   TrueStateFailed,
	}}
	l := newTestLedger(store, auth, 10*time.Minute.Milliseconds())

	report, err := l.RecoverOnStartup(ctx)
	if err != nil {
		t.Fatalf("RecoverOnStartup failed: %v", err)
	}

	if report.Scanned != 3 {
		t.Errorf("Scanned: got %d, want 3 (fresh intent excluded)", report.Scanned)
	}
	if report.Executed != 1 || report.Failed != 1 || report.Abandoned != 1 {
		t.Errorf("Unexpected report: %+v", report)
	}
	// An executed-but-locally-pending intent is a discrepancy.
	if report.Discrepancies != 1 {
		t.Errorf("Discrepancies: got %d, want 1", report.Discrepancies)
	}

	for id, want := range map[string]domain.IntentStatus{
		"was-executed":   domain.IntentExecuted,
		"was-failed":     domain.IntentFailed,
		"never-happened": domain.IntentAbandoned,
		"too-fresh":      domain.IntentPending,
	} {
		got, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID %s failed: %v", id, err)
		}
		if got.Status != want {
			t.Errorf("%s: got %s, want %s", id, got.Status, want)
		}
	}
}

func TestRecoverOnStartup_LookupFailureIsDiscrepancy(t *testing.T) {
	store := memory.NewOrderIntentStore()
	ctx := context.Background()

	if err := store.Insert(ctx, &domain.OrderIntent{
		IntentID: "stuck", Status: domain.IntentPending, CreatedTs: 0,
	}); err != nil {
		t.Fatal(err)
	}

	auth := &fakeAuthority{err: errors.New("venue unreachable")}
	l := newTestLedger(store, auth, 10*time.Minute.Milliseconds())

	report, err := l.RecoverOnStartup(ctx)
	if err != nil {
		t.Fatalf("RecoverOnStartup failed: %v", err)
	}
	if report.Discrepancies != 1 {
		t.Errorf("Discrepancies: got %d, want 1", report.Discrepancies)
	}

	// The intent stays pending: unknown truth is never guessed.
	got, _ := store.GetByID(ctx, "stuck")
	if got.Status != domain.IntentPending {
		t.Errorf("Status: got %s, want PENDING", got.Status)
	}
}
