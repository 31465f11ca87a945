package txtrack

import (
	"context"
	stdErrors "errors"
	"testing"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()
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

	if err := store.MarkSent(ctx, "r1", "tx-123"); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	got, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != StateSent || got.TxIdentifier != "tx-123" {
		t.Fatalf("unexpected record after send: %+v", got)
	}
	if got.FromAddress != "0xabc" || got.ToAddress != "0xdef" || got.Amount != "100.5" {
		t.Fatalf("record fields changed across transitions: %+v", got)
	}

	if err := store.MarkCompleted(ctx, "r1"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	got, err = store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get completed: %v", err)
	}
	if got.State != StateCompleted {
		t.Fatalf("expected COMPLETED, got %s", got.State)
	}
	updatedAt := got.UpdatedAt

	// 重复标记完成必须是无副作用的空操作。
	if err := store.MarkCompleted(ctx, "r1"); err != nil {
		t.Fatalf("repeat mark completed: %v", err)
	}
	got, _ = store.Get(ctx, "r1")
	if got.UpdatedAt != updatedAt {
		t.Fatalf("repeat completion bumped UpdatedAt: %d vs %d", got.UpdatedAt, updatedAt)
	}
}

func TestMemoryStoreMonotonicTransitions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Record{ID: "r1", State: StateInitiated, MaxAttempts: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}

	// COMPLETED 只能从 SENT 进入。
	if err := store.MarkCompleted(ctx, "r1"); !stdErrors.Is(err, ErrRecordConflict) {
		t.Fatalf("expected conflict for INITIATED->COMPLETED, got %v", err)
	}

	if err := store.MarkFailed(ctx, "r1", "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	// 终态不再推进。
	if err := store.MarkSent(ctx, "r1", "tx-1"); !stdErrors.Is(err, ErrRecordConflict) {
		t.Fatalf("expected conflict for FAILED->SENT, got %v", err)
	}
	if err := store.MarkFailed(ctx, "r1", "again"); err != nil {
		t.Fatalf("repeat mark failed should be benign: %v", err)
	}

	got, _ := store.Get(ctx, "r1")
	if got.State != StateFailed || got.ErrorMessage != "boom" {
		t.Fatalf("terminal record mutated: %+v", got)
	}
}

func TestMemoryStoreListOrdering(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		record := &Record{ID: id, State: StateInitiated, CreatedAt: int64(100 + i), MaxAttempts: 3}
		if err := store.Create(ctx, record); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if err := store.MarkSent(ctx, "b", "tx-b"); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	for i, want := range []string{"a", "b", "c"} {
		if all[i].ID != want {
			t.Fatalf("expected createdAt ascending order, got %s at %d", all[i].ID, i)
		}
	}

	sent, err := store.List(ctx, ListOptions{States: []State{StateSent}})
	if err != nil {
		t.Fatalf("list sent: %v", err)
	}
	if len(sent) != 1 || sent[0].ID != "b" {
		t.Fatalf("unexpected filtered list: %+v", sent)
	}
}

func TestMemoryStoreIdempotencyKey(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Record{ID: "r1", State: StateInitiated, IdempotencyKey: "k1", MaxAttempts: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	found, err := store.FindByIdempotencyKey(ctx, "k1")
	if err != nil {
		t.Fatalf("find by key: %v", err)
	}
	if found.ID != "r1" {
		t.Fatalf("expected r1, got %s", found.ID)
	}
	if _, err := store.FindByIdempotencyKey(ctx, "missing"); !stdErrors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	// 重复幂等键与 SQL 存储一样报冲突，空键不受唯一性限制。
	err = store.Create(ctx, &Record{ID: "r2", State: StateInitiated, IdempotencyKey: "k1", MaxAttempts: 3})
	if !stdErrors.Is(err, ErrRecordConflict) {
		t.Fatalf("expected conflict for duplicate key, got %v", err)
	}
	if err := store.Create(ctx, &Record{ID: "r3", State: StateInitiated, MaxAttempts: 3}); err != nil {
		t.Fatalf("create empty key r3: %v", err)
	}
	if err := store.Create(ctx, &Record{ID: "r4", State: StateInitiated, MaxAttempts: 3}); err != nil {
		t.Fatalf("create empty key r4: %v", err)
	}
}

func TestMemoryStoreClaim(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Record{ID: "r1", State: StateInitiated, MaxAttempts: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.MarkSent(ctx, "r1", "tx-1"); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	record, err := store.Claim(ctx, "r1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if record.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", record.Attempts)
	}

	if err := store.MarkCompleted(ctx, "r1"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	if _, err := store.Claim(ctx, "r1"); !stdErrors.Is(err, ErrRecordTerminal) {
		t.Fatalf("expected terminal error, got %v", err)
	}
}
