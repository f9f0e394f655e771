package spanz

import (
	"encoding/hex"
	"sync"
	"testing"

	"github.com/zoobzio/clockz"
)

func TestIDPoolBasicOperation(t *testing.T) {
	pool := NewIDPool(10, func() string { return "test-id" })
	defer pool.Close()

	if id := pool.Get(); id != "test-id" {
		t.Errorf("Expected 'test-id', got %s", id)
	}
}

func TestIDPoolDirectFallback(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	pool := NewIDPool(1, func() string {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return "direct-id"
	})
	pool.Close()

	// With the refill goroutine stopped the pool drains and Get falls back.
	for i := 0; i < 5; i++ {
		if id := pool.Get(); id != "direct-id" {
			t.Errorf("Expected 'direct-id', got %s", id)
		}
	}

	if pool.DirectCount() < 4 {
		t.Errorf("Expected at least 4 direct generations, got %d", pool.DirectCount())
	}
}

func TestIDPoolConcurrentAccess(t *testing.T) {
	pool := NewTraceIDPool(50, clockz.RealClock)
	defer pool.Close()

	var wg sync.WaitGroup
	var seen sync.Map
	numGoroutines := 10
	idsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < idsPerGoroutine; j++ {
				id := pool.Get()
				if _, dup := seen.LoadOrStore(id, struct{}{}); dup {
					t.Errorf("Duplicate trace ID %s", id)
				}
			}
		}()
	}
	wg.Wait()
}

func TestTraceIDFormat(t *testing.T) {
	pool := NewTraceIDPool(4, clockz.RealClock)
	defer pool.Close()

	id := pool.Get()
	if len(id) != 32 {
		t.Fatalf("Expected 32 hex characters, got %d (%s)", len(id), id)
	}
	if _, err := hex.DecodeString(id); err != nil {
		t.Errorf("Expected hex trace ID, got %s: %v", id, err)
	}
}

func TestIDPoolCloseWaitsForRefill(t *testing.T) {
	pool := NewIDPool(10, func() string { return "shutdown-test" })

	pool.Close()

	select {
	case <-pool.done:
	default:
		t.Error("Expected refill goroutine to have exited after Close")
	}

	// Multiple closes are safe.
	pool.Close()
}
