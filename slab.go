package spanz

import (
	"bytes"
	"runtime"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
)

// slot is one cell of the slab. A slot is full while record is set and
// otherwise links to the next free index through nextFree.
//
//nolint:govet // Field order keeps the buffer and lock apart
type slot struct {
	fields   bytes.Buffer
	record   *spanRecord
	nextFree uint64
	mu       sync.RWMutex
}

// next returns the free-list successor of an empty slot.
// The caller must hold the slot lock.
func (s *slot) next() (uint64, bool) {
	if s.record != nil {
		return 0, false
	}
	return s.nextFree, true
}

// fill stores rec in an empty slot and formats its initial fields.
// The field buffer was reset when the slot was emptied.
func (s *slot) fill(rec *spanRecord, values []attribute.KeyValue, f FieldFormatter) error {
	if s.record != nil {
		panic("spanz: tried to fill a full slot")
	}
	s.record = rec
	err := f.FormatFields(&s.fields, values)
	rec.hasFields = s.fields.Len() > 0
	return err
}

// appendFields formats additional values into a full slot.
func (s *slot) appendFields(values []attribute.KeyValue, f FieldFormatter) error {
	if s.record == nil {
		return nil
	}
	err := f.FormatFields(&s.fields, values)
	s.record.hasFields = s.fields.Len() > 0
	return err
}

// slab is an append-only table of slots.
// The lock guards the slots slice only; slot contents are guarded by each
// slot's own lock. Slot pointers never change once appended.
type slab struct {
	slots []*slot
	mu    sync.RWMutex
}

func newSlab(capacity int) *slab {
	return &slab{slots: make([]*slot, 0, capacity)}
}

// slotAt returns the slot at idx, or nil when idx is past the end.
func (s *slab) slotAt(idx uint64) *slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx >= uint64(len(s.slots)) {
		return nil
	}
	return s.slots[idx]
}

func (s *slab) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

// readSlot read-locks the full slot at idx. The caller must RUnlock it.
func (s *slab) readSlot(idx uint64) *slot {
	sl := s.slotAt(idx)
	if sl == nil {
		return nil
	}
	sl.mu.RLock()
	if sl.record == nil {
		sl.mu.RUnlock()
		return nil
	}
	return sl
}

// remove empties the slot at idx and pushes it onto the free list headed by
// head. Returns false if the slot no longer holds rec.
func (s *slab) remove(head *atomic.Uint64, idx uint64, rec *spanRecord) (*spanRecord, string, bool) {
	sl := s.slotAt(idx)
	if sl == nil {
		return nil, "", false
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.record != rec {
		// Emptied by a concurrent remover, possibly already refilled.
		return nil, "", false
	}

	// Push idx onto the free list. The slot stays locked until the push is
	// visible, so an allocator that sees idx as the head cannot take it early.
	for {
		h := head.Load()
		sl.nextFree = h
		if head.CompareAndSwap(h, idx) {
			break
		}
		runtime.Gosched()
	}

	sl.record = nil
	fields := sl.fields.String()
	sl.fields.Reset()
	return rec, fields, true
}
