package txtrack

import (
	"context"
	"sync"
	"testing"
	"time"

	xerrors "OpenMCP-Wallet/internal/errors"
	"OpenMCP-Wallet/internal/observability/alerting"
)

type captureAlerter struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (c *captureAlerter) Notify(_ context.Context, event alerting.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureAlerter) snapshot() []alerting.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]alerting.Event(nil), c.events...)
}

func waitForState(t *testing.T, store Store, id string, want State) *Record {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		record, err := store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if record.State == want {
			return record
		}
		time.Sleep(10 * time.Millisecond)
	}
	record, _ := store.Get(context.Background(), id)
	t.Fatalf("record %s never reached %s, state=%s", id, want, record.State)
	return nil
}

func TestWatcherCompletesConfirmedRecord(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	client := newFakeClient()
	client.found["tx-123"] = true

	record := &Record{ID: "r1", State: StateInitiated, MaxAttempts: 3}
	if err := store.Create(ctx, record); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.MarkSent(ctx, "r1", "tx-123"); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	watcher := NewWatcher(store, queue, queue, client, WithRequeueDelay(10*time.Millisecond))
	go func() { _ = watcher.Start(ctx) }()

	if err := queue.Publish(ctx, "r1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitForState(t, store, "r1", StateCompleted)
}

func TestWatcherFailsAfterMaxAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	client := newFakeClient()
	// tx-123 永远找不到。

	record := &Record{ID: "r1", State: StateInitiated, MaxAttempts: 2}
	if err := store.Create(ctx, record); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.MarkSent(ctx, "r1", "tx-123"); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	alerter := &captureAlerter{}
	watcher := NewWatcher(store, queue, queue, client,
		WithRequeueDelay(5*time.Millisecond),
		WithAlertDispatcher(alerter),
	)
	go func() { _ = watcher.Start(ctx) }()

	if err := queue.Publish(ctx, "r1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	failed := waitForState(t, store, "r1", StateFailed)
	if failed.ErrorMessage == "" {
		t.Fatal("expected failure reason on record")
	}
	if failed.Attempts < failed.MaxAttempts {
		t.Fatalf("expected attempts exhausted, got %d/%d", failed.Attempts, failed.MaxAttempts)
	}

	events := alerter.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected one alert event, got %d", len(events))
	}
	if events[0].RecordID != "r1" || events[0].Code != CodeSettlement {
		t.Fatalf("unexpected alert event: %+v", events[0])
	}
	if events[0].Severity != xerrors.SeverityCritical {
		t.Fatalf("expected critical severity, got %s", events[0].Severity)
	}
}

func TestWatcherSkipsTerminalRecord(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	client := newFakeClient()

	record := &Record{ID: "r1", State: StateInitiated, MaxAttempts: 3}
	if err := store.Create(ctx, record); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.MarkFailed(ctx, "r1", "gone"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	watcher := NewWatcher(store, queue, queue, client, WithRequeueDelay(5*time.Millisecond))
	go func() { _ = watcher.Start(ctx) }()

	if err := queue.Publish(ctx, "r1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	got, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != StateFailed || got.ErrorMessage != "gone" {
		t.Fatalf("terminal record mutated by watcher: %+v", got)
	}
}
