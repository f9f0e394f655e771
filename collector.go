package spanz

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/zoobzio/clockz"
)

// closeTimeout bounds how long Close waits for the collector goroutine.
const closeTimeout = 100 * time.Millisecond

// Collector buffers closed spans until they are exported.
// Register it with Subscriber.OnSpanClose(c.Collect).
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	buffer       *queue.Queue
	spansCh      chan SpanData
	stopCh       chan struct{}
	done         chan struct{}
	clock        clockz.Clock
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	closeOnce    sync.Once
	closed       atomic.Bool
	syncMode     atomic.Bool // Bypass channel for synchronous collection.
}

// NewCollector creates a collector with the given name and channel buffer size.
func NewCollector(name string, bufferSize int) *Collector {
	return NewCollectorWithClock(name, bufferSize, clockz.RealClock)
}

// NewCollectorWithClock creates a collector whose shutdown timeout runs on clock.
func NewCollectorWithClock(name string, bufferSize int, clock clockz.Clock) *Collector {
	if bufferSize < 0 {
		bufferSize = 0
	}
	c := &Collector{
		name:    name,
		buffer:  queue.New(),
		spansCh: make(chan SpanData, bufferSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		clock:   clock,
	}
	go c.start()
	return c
}

// Name returns the collector's name.
func (c *Collector) Name() string {
	return c.name
}

// start runs the collector's main loop, receiving spans from the channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining spans before shutdown.
			for {
				select {
				case span := <-c.spansCh:
					c.bufferSpan(span)
				default:
					return
				}
			}
		case span := <-c.spansCh:
			c.bufferSpan(span)
		}
	}
}

// Close stops the collector goroutine, waiting briefly for it to drain.
// Buffered spans remain exportable. Safe to call multiple times.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
		select {
		case <-c.done:
		case <-c.clock.After(closeTimeout):
		}
	})
}

// Collect buffers a closed span. It has the SpanHandler signature.
// If the channel is full or the collector is closed, the span is dropped and
// the drop counter is incremented. In sync mode spans are buffered directly.
func (c *Collector) Collect(span SpanData) {
	if c.closed.Load() {
		c.droppedCount.Add(1)
		return
	}

	if c.syncMode.Load() {
		c.bufferSpan(span)
		return
	}

	select {
	case c.spansCh <- span:
	default:
		// Channel full - drop span to prevent blocking.
		c.droppedCount.Add(1)
	}
}

func (c *Collector) bufferSpan(span SpanData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer.Add(span)
}

// Export returns all buffered spans in close order and clears the buffer.
func (c *Collector) Export() []SpanData {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.buffer.Length()
	if n == 0 {
		return nil
	}

	result := make([]SpanData, 0, n)
	for c.buffer.Length() > 0 {
		// The queue shrinks its ring as it empties.
		result = append(result, c.buffer.Remove().(SpanData))
	}
	return result
}

// Count returns the current number of buffered spans.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.Length()
}

// DroppedCount returns the total number of spans dropped.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for testing.
// When enabled, spans are collected directly without using the channel.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears all buffered spans and resets the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buffer = queue.New()
	c.droppedCount.Store(0)
}
