package spanz

import (
	"context"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
)

// IDPool keeps a buffer of pre-generated trace IDs filled by a background
// goroutine, so root spans do not pay for random generation inline.
//
//nolint:govet // Field order groups lifecycle state
type IDPool struct {
	factory   func() string
	ids       chan string
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	direct    atomic.Uint64
}

// NewIDPool creates a pool holding up to capacity IDs made by factory.
func NewIDPool(capacity int, factory func() string) *IDPool {
	if capacity < 1 {
		capacity = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	pool := &IDPool{
		factory: factory,
		ids:     make(chan string, capacity),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go pool.refill(ctx)
	return pool
}

// NewTraceIDPool creates a pool of 128-bit hex trace IDs.
// The clock is only used when random generation fails.
func NewTraceIDPool(capacity int, clock clockz.Clock) *IDPool {
	return NewIDPool(capacity, traceIDFactory(clock))
}

func traceIDFactory(clock clockz.Clock) func() string {
	return func() string {
		u, err := uuid.NewRandom()
		if err != nil {
			// Fallback to time-based ID if crypto/rand fails.
			return hex.EncodeToString([]byte(clock.Now().Format(time.RFC3339Nano)))
		}
		return hex.EncodeToString(u[:])
	}
}

// Get returns a pooled ID, or generates one directly when the pool is drained.
func (p *IDPool) Get() string {
	select {
	case id := <-p.ids:
		return id
	default:
		p.direct.Add(1)
		return p.factory()
	}
}

// DirectCount returns how many IDs were generated inline because the pool was empty.
func (p *IDPool) DirectCount() uint64 {
	return p.direct.Load()
}

func (p *IDPool) refill(ctx context.Context) {
	defer close(p.done)
	for {
		id := p.factory()
		select {
		case p.ids <- id:
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the refill goroutine and waits for it to exit.
// Get keeps working after Close by generating IDs directly.
func (p *IDPool) Close() {
	p.closeOnce.Do(func() {
		p.cancel()
		<-p.done
	})
}
