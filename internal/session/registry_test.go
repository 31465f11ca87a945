package session

import (
	"errors"
	"sync"
	"testing"
)

type countingCloser struct {
	mu     sync.Mutex
	closed int
	err    error
}

func (c *countingCloser) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return c.err
}

func TestRegistryConcurrentCreateDistinctIDs(t *testing.T) {
	registry := NewRegistry()

	const n = 10000
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := registry.Create(KindStream, &countingCloser{})
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			ids <- sess.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{}, n)
	for id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate session id %s", id)
		}
		seen[id] = struct{}{}
	}
	if len(seen) != n {
		t.Fatalf("expected %d sessions, got %d", n, len(seen))
	}
	if registry.Count() != n {
		t.Fatalf("expected registry count %d, got %d", n, registry.Count())
	}
}

func TestRegistryGetScopedByKind(t *testing.T) {
	registry := NewRegistry()
	sess, err := registry.Create(KindSSE, &countingCloser{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, ok := registry.Get(sess.ID, KindSSE); !ok {
		t.Fatal("expected session under its own kind")
	}
	if _, ok := registry.Get(sess.ID, KindStream); ok {
		t.Fatal("session leaked across transport kinds")
	}
	if _, ok := registry.Get("missing", KindSSE); ok {
		t.Fatal("expected miss for unknown id")
	}
}

func TestRegistryRemoveIdempotent(t *testing.T) {
	registry := NewRegistry()
	handle := &countingCloser{}
	sess, err := registry.Create(KindStream, handle)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	registry.Remove(sess.ID, KindStream)
	registry.Remove(sess.ID, KindStream)
	registry.Remove("missing", KindStream)

	if handle.closed != 1 {
		t.Fatalf("expected handle closed once, got %d", handle.closed)
	}
	if registry.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", registry.Count())
	}
}

func TestRegistryCloseAllContinuesOnError(t *testing.T) {
	registry := NewRegistry()
	bad := &countingCloser{err: errors.New("broken pipe")}
	good := &countingCloser{}

	if _, err := registry.Create(KindStream, bad); err != nil {
		t.Fatalf("create bad: %v", err)
	}
	if _, err := registry.Create(KindSSE, good); err != nil {
		t.Fatalf("create good: %v", err)
	}

	registry.CloseAll()

	if bad.closed != 1 || good.closed != 1 {
		t.Fatalf("expected both handles closed, got bad=%d good=%d", bad.closed, good.closed)
	}
	if registry.Count() != 0 {
		t.Fatalf("expected empty registry after CloseAll, got %d", registry.Count())
	}
}

func TestSessionCloseOnce(t *testing.T) {
	registry := NewRegistry()
	handle := &countingCloser{}
	sess, err := registry.Create(KindStdio, handle)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if handle.closed != 1 {
		t.Fatalf("expected single close, got %d", handle.closed)
	}
}
