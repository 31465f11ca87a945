package txtrack

import (
	"context"
	stdErrors "errors"
	"path/filepath"
	"testing"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "txtrack.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreLifecycle(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	record := &Record{
		ID:          "r1",
		State:       StateInitiated,
		FromAddress: "0xabc",
		ToAddress:   "0xdef",
		Amount:      "100.5",
		MaxAttempts: 3,
	}
	if err := store.Create(ctx, record); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, record); !stdErrors.Is(err, ErrRecordConflict) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}

	if err := store.MarkSent(ctx, "r1", "tx-123"); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := store.MarkCompleted(ctx, "r1"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	got, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != StateCompleted || got.TxIdentifier != "tx-123" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.FromAddress != "0xabc" || got.ToAddress != "0xdef" || got.Amount != "100.5" {
		t.Fatalf("record fields changed across transitions: %+v", got)
	}
	updatedAt := got.UpdatedAt

	if err := store.MarkCompleted(ctx, "r1"); err != nil {
		t.Fatalf("repeat completion must be benign: %v", err)
	}
	got, _ = store.Get(ctx, "r1")
	if got.UpdatedAt != updatedAt {
		t.Fatal("repeat completion bumped UpdatedAt")
	}

	if err := store.MarkSent(ctx, "r1", "tx-456"); !stdErrors.Is(err, ErrRecordConflict) {
		t.Fatalf("expected conflict for COMPLETED->SENT, got %v", err)
	}
}

func TestSQLiteStoreIdempotencyKeyUnique(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, &Record{ID: "r1", State: StateInitiated, IdempotencyKey: "k1", MaxAttempts: 3}); err != nil {
		t.Fatalf("create r1: %v", err)
	}
	err := store.Create(ctx, &Record{ID: "r2", State: StateInitiated, IdempotencyKey: "k1", MaxAttempts: 3})
	if !stdErrors.Is(err, ErrRecordConflict) {
		t.Fatalf("expected conflict on duplicate idempotency key, got %v", err)
	}

	// 空幂等键不受唯一约束限制。
	if err := store.Create(ctx, &Record{ID: "r3", State: StateInitiated, MaxAttempts: 3}); err != nil {
		t.Fatalf("create r3: %v", err)
	}
	if err := store.Create(ctx, &Record{ID: "r4", State: StateInitiated, MaxAttempts: 3}); err != nil {
		t.Fatalf("create r4: %v", err)
	}

	found, err := store.FindByIdempotencyKey(ctx, "k1")
	if err != nil {
		t.Fatalf("find by key: %v", err)
	}
	if found.ID != "r1" {
		t.Fatalf("expected r1, got %s", found.ID)
	}
}

func TestSQLiteStoreListFilter(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		record := &Record{ID: id, State: StateInitiated, CreatedAt: int64(100 + i), MaxAttempts: 3}
		if err := store.Create(ctx, record); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if err := store.MarkSent(ctx, "c", "tx-c"); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "a" || all[2].ID != "c" {
		t.Fatalf("unexpected ordering: %+v", all)
	}

	sent, err := store.List(ctx, ListOptions{States: []State{StateSent}})
	if err != nil {
		t.Fatalf("list sent: %v", err)
	}
	if len(sent) != 1 || sent[0].ID != "c" {
		t.Fatalf("unexpected filtered result: %+v", sent)
	}
}
