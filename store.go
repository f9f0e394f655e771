package spanz

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sys/cpu"
)

// Closer releases a reference to a span.
// The Store releases a closed span's parent through its Closer, so a
// Subscriber sees every close, including the ones cascading up a trace.
type Closer interface {
	TryClose(id ID) bool
}

// Store holds the data of every open span.
// Safe for concurrent use by multiple goroutines.
//
// Spans live in a slab of slots, each with its own lock, so any number of
// spans can be written concurrently while the slab is not growing. Closed
// slots are recycled through a free list whose head is a single atomic index;
// each empty slot stores the index of the next free one.
//
//nolint:govet // Padding keeps the free-list head on its own cache line
type Store struct {
	_         cpu.CacheLinePad
	next      atomic.Uint64
	_         cpu.CacheLinePad
	live      atomic.Int64
	closed    atomic.Bool
	slab      *slab
	closer    Closer
	onClose   func(SpanData)
	formatter FieldFormatter
	clock     clockz.Clock
	logger    *zap.Logger
	metrics   *Metrics
	traceIDs  *IDPool
	poolSize  int
	poolOnce  sync.Once
}

// StoreStats is a point-in-time view of a Store.
type StoreStats struct {
	Slots    int
	Live     int64
	FreeHead uint64
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	return newStore(buildOptions(opts))
}

func newStore(o options) *Store {
	s := &Store{
		slab:      newSlab(o.capacity),
		formatter: o.formatter,
		clock:     o.clock,
		logger:    o.logger,
		metrics:   o.metrics,
		poolSize:  o.idPoolSize,
	}
	s.closer = s
	return s
}

// ensureIDPool starts the trace ID pool on first use.
func (s *Store) ensureIDPool() {
	s.poolOnce.Do(func() {
		s.traceIDs = NewTraceIDPool(s.poolSize, s.clock)
	})
}

func (s *Store) newTraceID() string {
	s.ensureIDPool()
	if s.traceIDs == nil {
		// Closed before the pool was ever needed.
		return traceIDFactory(s.clock)()
	}
	return s.traceIDs.Get()
}

// NewSpan stores a new span described by attrs and returns its ID.
//
// The parent is resolved from attrs: none for roots, the span entered on
// ctx for contextual spans, or attrs.ParentID. The new span holds a
// reference to its parent until it closes and joins the parent's trace.
// If there are empty slots left by closed spans, the most recently emptied
// one is reused; otherwise the slab grows by one slot.
//
// Returns InvalidID if attrs is nil or the Store is closed.
func (s *Store) NewSpan(ctx context.Context, attrs *Attributes) ID {
	if attrs == nil || s.closed.Load() {
		return InvalidID
	}

	var parent ID
	switch {
	case attrs.IsRoot():
	case attrs.IsContextual():
		parent, _ = Current(ctx)
	default:
		parent = attrs.ParentID
	}

	var traceID string
	if parent.IsValid() {
		var ok bool
		if traceID, ok = s.cloneRef(parent); !ok {
			// The parent is already gone; start a new trace.
			parent = InvalidID
		}
	}
	if !parent.IsValid() {
		traceID = s.newTraceID()
	}

	rec := newSpanRecord(attrs.Metadata, parent, traceID, s.clock.Now())
	return s.allocate(rec, attrs.Values)
}

// allocate pops the free list or grows the slab.
//
// The free list is a Treiber stack over slab indices rather than pointers,
// with a provision for growing the slab when the stack is empty.
func (s *Store) allocate(rec *spanRecord, values []attribute.KeyValue) ID {
	for {
		// Acquire a snapshot of the head of the free list.
		head := s.next.Load()

		if sl := s.slab.slotAt(head); sl != nil {
			if id, ok := s.fillFree(sl, head, rec, values); ok {
				return id
			}
			// Our snapshot got stale, try again.
			s.metrics.allocRetried()
			runtime.Gosched()
			continue
		}

		if id, ok := s.grow(head, rec, values); ok {
			return id
		}
		s.metrics.allocRetried()
		runtime.Gosched()
	}
}

// fillFree takes the free slot at head if it is still the list head.
func (s *Store) fillFree(sl *slot, head uint64, rec *spanRecord, values []attribute.KeyValue) (ID, bool) {
	// Someone else is writing to the head slot.
	if !sl.mu.TryLock() {
		return InvalidID, false
	}
	defer sl.mu.Unlock()

	next, ok := sl.next()
	if !ok || !s.next.CompareAndSwap(head, next) {
		return InvalidID, false
	}

	id := idxToID(head)
	s.live.Add(1)
	s.metrics.spanCreated(true)
	if err := sl.fill(rec, values, s.formatter); err != nil {
		s.formatFailed(id, err)
	}
	return id, true
}

// grow appends a slot for rec when the free list is empty.
// The head only moves past the end of the slab while the structural lock is
// held, so slots freed concurrently are never overwritten.
func (s *Store) grow(head uint64, rec *spanRecord, values []attribute.KeyValue) (ID, bool) {
	sl := &slot{}
	sl.mu.Lock()
	defer sl.mu.Unlock()

	s.slab.mu.Lock()
	n := uint64(len(s.slab.slots))
	if head != n || !s.next.CompareAndSwap(n, n+1) {
		s.slab.mu.Unlock()
		return InvalidID, false
	}
	s.slab.slots = append(s.slab.slots, sl)
	s.slab.mu.Unlock()

	id := idxToID(n)
	s.live.Add(1)
	s.metrics.spanCreated(false)
	s.metrics.slabGrew(int(n + 1))
	if err := sl.fill(rec, values, s.formatter); err != nil {
		s.formatFailed(id, err)
	}
	return id, true
}

// Get returns a read handle on the span with the given id.
// Returns false if the span has closed or never existed. The caller must
// Release the handle.
func (s *Store) Get(id ID) (*SpanRef, bool) {
	if !id.IsValid() {
		return nil, false
	}
	sl := s.slab.readSlot(idToIdx(id))
	if sl == nil {
		return nil, false
	}
	return &SpanRef{slot: sl, id: id}, true
}

// View calls fn with a read handle on the span, releasing it afterwards.
// Returns false if the span does not exist.
func (s *Store) View(id ID, fn func(*SpanRef)) bool {
	ref, ok := s.Get(id)
	if !ok {
		return false
	}
	defer ref.Release()
	fn(ref)
	return true
}

// Snapshot copies the current state of a live span.
func (s *Store) Snapshot(id ID) (SpanData, bool) {
	var data SpanData
	ok := s.View(id, func(ref *SpanRef) {
		data = ref.Snapshot()
	})
	return data, ok
}

// Record formats values into the span's fields.
// No-op if the span has closed.
func (s *Store) Record(id ID, values ...attribute.KeyValue) {
	if !id.IsValid() {
		return
	}
	sl := s.slab.slotAt(idToIdx(id))
	if sl == nil {
		return
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if err := sl.appendFields(values, s.formatter); err != nil {
		s.formatFailed(id, err)
	}
}

// CloneRef adds a reference to the span and returns its ID.
// Cloning a span that has already closed is a caller defect.
func (s *Store) CloneRef(id ID) ID {
	s.cloneRef(id)
	return id
}

// cloneRef adds a reference and returns the span's trace ID.
func (s *Store) cloneRef(id ID) (string, bool) {
	var sl *slot
	if id.IsValid() {
		sl = s.slab.readSlot(idToIdx(id))
	}
	if sl == nil {
		s.fault("tried to clone a ref to a span that no longer exists", "clone_missing", id)
		return "", false
	}
	defer sl.mu.RUnlock()

	rec := sl.record
	if prev := rec.cloneRef(); prev <= 0 {
		// The span is being removed; the reference cannot be honored.
		rec.refs.Add(-1)
		s.fault("tried to clone a span that already closed", "clone_closed", id)
		return "", false
	}
	return rec.traceID, true
}

// DropRef releases a reference to the span and removes it when none remain.
// Returns true if this call closed the span.
//
// On removal the close hook receives the span's data, and the span's own
// reference to its parent is released through the Store's Closer.
func (s *Store) DropRef(id ID) bool {
	return s.dropRef(id, false)
}

// dropRef releases a reference. While unwinding, defects are logged without
// panicking.
func (s *Store) dropRef(id ID, unwinding bool) bool {
	if !id.IsValid() {
		return false
	}
	idx := idToIdx(id)

	sl := s.slab.readSlot(idx)
	if sl == nil {
		s.report("tried to drop a span that no longer exists", "drop_missing", id, unwinding)
		return false
	}
	rec := sl.record
	remaining := rec.dropRef()
	sl.mu.RUnlock()

	if remaining > 0 {
		return false
	}
	if remaining < 0 {
		rec.refs.Add(1)
		s.report("reference count underflow", "drop_underflow", id, unwinding)
		return false
	}

	// sync/atomic operations are sequentially consistent, so every write
	// made under an earlier reference is visible before the slot is reused.
	removed, fields, ok := s.slab.remove(&s.next, idx, rec)
	if !ok {
		return true
	}
	s.live.Add(-1)
	s.metrics.spanClosed()
	s.finish(id, removed, fields, unwinding)
	return true
}

// TryClose releases a reference. It makes Store its own default Closer.
func (s *Store) TryClose(id ID) bool {
	return s.DropRef(id)
}

// finish publishes a removed span and releases its parent.
func (s *Store) finish(id ID, rec *spanRecord, fields string, unwinding bool) {
	end := s.clock.Now()
	if s.onClose != nil {
		s.onClose(SpanData{
			ID:        id,
			Parent:    rec.parent,
			TraceID:   rec.traceID,
			Name:      rec.name(),
			Metadata:  rec.metadata,
			Fields:    fields,
			StartTime: rec.start,
			EndTime:   end,
			Duration:  end.Sub(rec.start),
		})
	}
	switch {
	case !rec.parent.IsValid():
	case unwinding:
		s.dropRef(rec.parent, true)
	default:
		s.closer.TryClose(rec.parent)
	}
}

// Enter pushes id onto the span stack carried by ctx.
// If ctx has no stack, a new one is attached and the derived context is
// returned; callers should keep using the returned context. Entering a span
// that is already on the stack records a duplicate entry, which holds no
// reference and does not change Current. Entering a closed span or InvalidID
// leaves the stack untouched.
func (s *Store) Enter(ctx context.Context, id ID) context.Context {
	if !id.IsValid() {
		return ctx
	}
	stack := StackFrom(ctx)
	if stack == nil {
		ctx = WithStack(ctx)
		stack = StackFrom(ctx)
	}
	if stack.Contains(id) {
		stack.push(id)
		return ctx
	}
	// Only a span that took the reference goes on the stack, so Exit never
	// releases a reference it does not own.
	if _, ok := s.cloneRef(id); ok {
		stack.push(id)
	}
	return ctx
}

// Exit pops id from ctx's span stack if it is the innermost entry.
// Exiting any other span is ignored. Exiting a non-duplicate entry releases
// the reference taken by Enter.
func (s *Store) Exit(ctx context.Context, id ID) {
	stack := StackFrom(ctx)
	if stack == nil {
		return
	}
	if duplicate, ok := stack.pop(id); ok && !duplicate {
		s.closer.TryClose(id)
	}
}

// ExitDeferred is Exit for use in a defer statement:
//
//	ctx = store.Enter(ctx, id)
//	defer store.ExitDeferred(ctx, id)
//
// When the goroutine is panicking, defects found while exiting are logged at
// error level instead of raising a second panic, and the original panic
// continues.
func (s *Store) ExitDeferred(ctx context.Context, id ID) {
	r := recover()
	if r == nil {
		s.Exit(ctx, id)
		return
	}
	s.exitUnwinding(ctx, id)
	panic(r)
}

// exitUnwinding pops id and releases its reference without escalating defects.
func (s *Store) exitUnwinding(ctx context.Context, id ID) {
	stack := StackFrom(ctx)
	if stack == nil {
		return
	}
	if duplicate, ok := stack.pop(id); ok && !duplicate {
		s.dropRef(id, true)
	}
}

// Stats returns a snapshot of the Store's occupancy.
func (s *Store) Stats() StoreStats {
	return StoreStats{
		Slots:    s.slab.len(),
		Live:     s.live.Load(),
		FreeHead: s.next.Load(),
	}
}

// Close stops accepting new spans and stops the trace ID pool.
// Spans already stored remain readable and closable.
func (s *Store) Close() {
	s.closed.Store(true)
	// Prevent a later NewSpan from starting the pool.
	s.poolOnce.Do(func() {})
	if s.traceIDs != nil {
		s.traceIDs.Close()
	}
}

// fault reports a span bookkeeping defect.
// DPanic panics in development loggers and logs at error level otherwise.
func (s *Store) fault(msg, kind string, id ID) {
	s.report(msg, kind, id, false)
}

// report logs a defect at error level while unwinding a panic, so cleanup
// never replaces the panic in flight.
func (s *Store) report(msg, kind string, id ID, unwinding bool) {
	s.metrics.defect(kind)
	if unwinding {
		s.logger.Error(msg, zap.Uint64("span_id", uint64(id)), zap.Bool("unwinding", true))
		return
	}
	s.logger.DPanic(msg, zap.Uint64("span_id", uint64(id)))
}

func (s *Store) formatFailed(id ID, err error) {
	s.metrics.formatFailed()
	s.logger.Warn("failed to format span fields",
		zap.Uint64("span_id", uint64(id)),
		zap.Error(err),
	)
}
