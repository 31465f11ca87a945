package gateway

import (
	"net/http"
	"sync"
	"testing"
	"time"

	xerrors "OpenMCP-Wallet/internal/errors"
	"OpenMCP-Wallet/internal/session"
)

// sealableWriter 在 seal 之后拒绝任何写入，用来断言 Close 返回后
// 不会再有事件帧写到底层连接上。
type sealableWriter struct {
	mu         sync.Mutex
	header     http.Header
	sealed     bool
	violations int
}

func (w *sealableWriter) Header() http.Header { return w.header }

func (w *sealableWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sealed {
		w.violations++
	}
	return len(p), nil
}

func (w *sealableWriter) WriteHeader(int) {}
func (w *sealableWriter) Flush()          {}

func (w *sealableWriter) seal() {
	w.mu.Lock()
	w.sealed = true
	w.mu.Unlock()
}

func (w *sealableWriter) violationCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.violations
}

func TestSSEConnNoWriteAfterClose(t *testing.T) {
	writer := &sealableWriter{header: http.Header{}}
	conn := newSSEConn(writer, writer)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := conn.Send("message", []byte(`{"ok":true}`)); err != nil {
					return
				}
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Close 返回即代表 handler 可以安全退出，此后写入都算违规。
	writer.seal()
	wg.Wait()

	if n := writer.violationCount(); n != 0 {
		t.Fatalf("%d writes landed after close", n)
	}
	if err := conn.Send("message", []byte("late")); xerrors.CodeOf(err) != session.CodeSessionNotFound {
		t.Fatalf("expected closed-session error, got %v", err)
	}
	select {
	case <-conn.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}
