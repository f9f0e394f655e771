package spanz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SpanHandler is called when a span closes.
type SpanHandler func(span SpanData)

type handlerEntry struct {
	handler SpanHandler
	id      uint64
	async   bool
}

// Subscriber is the facade instrumentation talks to. It owns one Store,
// forwards span lifecycle calls to it, and hands closed spans to the
// registered handlers.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Subscriber struct {
	handlers     []handlerEntry
	panicHook    func(handlerID uint64, r interface{})
	workers      *workerPool
	store        *Store
	fmtCtx       *Context
	logger       *zap.Logger
	metrics      *Metrics
	handlersLock sync.RWMutex
	closeOnce    sync.Once
	nextID       atomic.Uint64
	droppedSpans atomic.Uint64
}

// New creates a Subscriber with its own Store.
func New(opts ...Option) *Subscriber {
	o := buildOptions(opts)
	store := newStore(o)
	sub := &Subscriber{
		handlers: make([]handlerEntry, 0),
		store:    store,
		fmtCtx:   NewContext(store, o.formatter),
		logger:   o.logger,
		metrics:  o.metrics,
	}
	// Parents of closed spans are released through the Subscriber, so
	// cascading closes are dispatched like any other.
	store.closer = sub
	store.onClose = sub.executeHandlers
	return sub
}

// Store returns the Subscriber's span store.
func (s *Subscriber) Store() *Store {
	return s.store
}

// Context returns the formatter view of the current span context.
func (s *Subscriber) Context() *Context {
	return s.fmtCtx
}

// Enabled reports whether spans for meta should be recorded. Always true.
func (*Subscriber) Enabled(_ *Metadata) bool {
	return true
}

// NewSpan registers a new span and returns its ID.
func (s *Subscriber) NewSpan(ctx context.Context, attrs *Attributes) ID {
	return s.store.NewSpan(ctx, attrs)
}

// Record attaches more fields to an open span.
func (s *Subscriber) Record(id ID, values ...attribute.KeyValue) {
	s.store.Record(id, values...)
}

// Enter marks id as the current span of ctx's goroutine.
// Keep using the returned context; it carries the span stack.
func (s *Subscriber) Enter(ctx context.Context, id ID) context.Context {
	return s.store.Enter(ctx, id)
}

// Exit leaves id if it is the innermost span entered on ctx.
func (s *Subscriber) Exit(ctx context.Context, id ID) {
	s.store.Exit(ctx, id)
}

// ExitDeferred is Exit for use in a defer statement. While the goroutine is
// panicking, exit defects are logged instead of panicking again.
func (s *Subscriber) ExitDeferred(ctx context.Context, id ID) {
	r := recover()
	if r == nil {
		s.store.Exit(ctx, id)
		return
	}
	s.store.exitUnwinding(ctx, id)
	panic(r)
}

// CloneSpan adds a reference to an open span.
func (s *Subscriber) CloneSpan(id ID) ID {
	return s.store.CloneRef(id)
}

// TryClose releases a reference and reports whether the span closed.
func (s *Subscriber) TryClose(id ID) bool {
	return s.store.DropRef(id)
}

// CurrentSpan returns the span entered on ctx and its metadata.
func (s *Subscriber) CurrentSpan(ctx context.Context) (ID, *Metadata, bool) {
	id, ok := Current(ctx)
	if !ok {
		return InvalidID, nil, false
	}
	var meta *Metadata
	if !s.store.View(id, func(ref *SpanRef) { meta = ref.Metadata() }) {
		return InvalidID, nil, false
	}
	return id, meta, true
}

// OnSpanClose registers a synchronous handler called when spans close.
// Synchronous handlers run on the goroutine releasing the last reference.
func (s *Subscriber) OnSpanClose(handler SpanHandler) uint64 {
	return s.registerHandler(handler, false)
}

// OnSpanCloseAsync registers an asynchronous handler called when spans close.
func (s *Subscriber) OnSpanCloseAsync(handler SpanHandler) uint64 {
	return s.registerHandler(handler, true)
}

func (s *Subscriber) registerHandler(handler SpanHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := s.nextID.Add(1)

	s.handlersLock.Lock()
	defer s.handlersLock.Unlock()

	s.handlers = append(s.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// RemoveHandler removes a handler by ID.
func (s *Subscriber) RemoveHandler(id uint64) {
	s.handlersLock.Lock()
	defer s.handlersLock.Unlock()

	// Preserve order
	for i, h := range s.handlers {
		if h.id == id {
			copy(s.handlers[i:], s.handlers[i+1:])
			s.handlers = s.handlers[:len(s.handlers)-1]
			return
		}
	}
}

// HasHandlers reports whether any close handler is registered.
func (s *Subscriber) HasHandlers() bool {
	s.handlersLock.RLock()
	defer s.handlersLock.RUnlock()
	return len(s.handlers) > 0
}

// SetPanicHook sets a function to be called when a handler panics.
func (s *Subscriber) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	s.handlersLock.Lock()
	defer s.handlersLock.Unlock()
	s.panicHook = hook
}

// executeHandlers calls all registered handlers with the closed span.
func (s *Subscriber) executeHandlers(span SpanData) {
	s.handlersLock.RLock()
	if len(s.handlers) == 0 {
		s.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(s.handlers))
	copy(handlers, s.handlers)
	workers := s.workers
	hook := s.panicHook
	s.handlersLock.RUnlock()

	for _, h := range handlers {
		if h.async {
			entry := h
			if workers != nil {
				workers.submit(func() {
					s.safeCall(entry, span, hook)
				})
			} else {
				go s.safeCall(entry, span, hook)
			}
		} else {
			s.safeCall(h, span, hook)
		}
	}
}

func (s *Subscriber) safeCall(entry handlerEntry, span SpanData, hook func(uint64, interface{})) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.handlerPanicked()
			s.logger.Error("span close handler panicked",
				zap.Uint64("handler_id", entry.id),
				zap.Uint64("span_id", uint64(span.ID)),
				zap.Any("panic", r),
			)
			if hook != nil {
				hook(entry.id, r)
			}
		}
	}()
	entry.handler(span)
}

// EnableWorkerPool creates a bounded worker pool for async handlers.
func (s *Subscriber) EnableWorkerPool(workers, queueSize int) error {
	if workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return errors.New("queueSize must be > 0")
	}

	s.handlersLock.Lock()
	defer s.handlersLock.Unlock()

	if s.workers != nil {
		return errors.New("worker pool already enabled")
	}

	s.workers = &workerPool{
		tasks: make(chan func(), queueSize),
		stop:  make(chan struct{}),
		onDrop: func() {
			s.droppedSpans.Add(1)
			s.metrics.dispatchDropped()
		},
	}

	s.workers.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.workers.run()
	}

	return nil
}

// DroppedSpans returns the number of async dispatches dropped due to a full worker queue.
func (s *Subscriber) DroppedSpans() uint64 {
	return s.droppedSpans.Load()
}

// Close shuts down the Subscriber and its Store.
// Spans closed afterwards are no longer dispatched. Safe to call multiple times.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		// Stop new handler executions
		s.handlersLock.Lock()
		s.handlers = nil
		workers := s.workers
		s.workers = nil
		s.handlersLock.Unlock()

		// Wait for in-flight async tasks
		if workers != nil {
			workers.shutdown()
		}

		s.store.Close()
	})
}

// workerPool manages a fixed number of workers for processing async handlers.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks  chan func()
	stop   chan struct{}
	onDrop func()
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			// Drain queued tasks before exiting.
			for {
				select {
				case task := <-w.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// submit queues task, or drops it when the queue is full or the pool has
// shut down. Tasks queued before shutdown are drained by the workers.
func (w *workerPool) submit(task func()) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.onDrop()
		return
	}
	select {
	case w.tasks <- task:
	default:
		w.onDrop()
	}
}

func (w *workerPool) shutdown() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.stop)
	w.mu.Unlock()

	w.wg.Wait()
}
