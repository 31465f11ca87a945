package txtrack

import (
	"context"
	"sync"
	"testing"
	"time"

	xerrors "OpenMCP-Wallet/internal/errors"
)

func TestMemoryQueueRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := NewMemoryQueue(4)
	defer queue.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	go func() {
		_ = queue.Consume(ctx, 2, func(_ context.Context, recordID string) error {
			mu.Lock()
			got = append(got, recordID)
			if len(got) == 3 {
				close(done)
			}
			mu.Unlock()
			return nil
		})
	}()

	for _, id := range []string{"r1", "r2", "r3"} {
		if err := queue.Publish(ctx, id); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("records were not consumed")
	}
}

func TestMemoryQueuePublishAfterClose(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	err := queue.Publish(context.Background(), "r1")
	if xerrors.CodeOf(err) != xerrors.CodeQueueFailure {
		t.Fatalf("expected QUEUE_FAILURE after close, got %v", err)
	}
	// 重复关闭应当是无操作。
	if err := queue.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestMemoryQueueFullBufferBackpressure(t *testing.T) {
	queue := NewMemoryQueue(1)
	defer queue.Close()

	if err := queue.Publish(context.Background(), "r1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if queue.Depth() != 1 {
		t.Fatalf("expected depth 1, got %d", queue.Depth())
	}

	// 缓冲已满，第二次投递应阻塞到 ctx 取消。
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := queue.Publish(ctx, "r2"); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded on full buffer, got %v", err)
	}
}

func TestMemoryQueueCloseDuringBlockedPublish(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Publish(context.Background(), "r1"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// 投递方阻塞在满缓冲上时关闭队列，不能 panic，要以错误返回。
	errCh := make(chan error, 1)
	go func() {
		errCh <- queue.Publish(context.Background(), "r2")
	}()
	time.Sleep(10 * time.Millisecond)
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case err := <-errCh:
		if xerrors.CodeOf(err) != xerrors.CodeQueueFailure {
			t.Fatalf("expected QUEUE_FAILURE, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked publish never returned after close")
	}
}
