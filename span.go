package spanz

import (
	"time"
)

// SpanData is an immutable snapshot of a span.
// Closed spans are delivered to handlers as SpanData.
//
//nolint:govet // Field order follows how spans are printed
type SpanData struct {
	StartTime time.Time
	EndTime   time.Time
	Metadata  *Metadata
	Duration  time.Duration
	TraceID   string
	Fields    string
	Name      Key
	ID        ID
	Parent    ID
}

// HasParent reports whether the span was created with a parent.
func (d SpanData) HasParent() bool {
	return d.Parent.IsValid()
}

// SpanRef is a read handle on a live span.
// The span's slot stays read-locked until Release is called, so the span
// cannot be recycled or modified while the handle is held. Do not operate on
// the same span through the Store while holding its SpanRef.
type SpanRef struct {
	slot *slot
	id   ID
}

// ID returns the span's identifier.
func (r *SpanRef) ID() ID {
	return r.id
}

// Name returns the span's name.
func (r *SpanRef) Name() Key {
	return r.slot.record.name()
}

// Metadata returns the span's callsite metadata.
func (r *SpanRef) Metadata() *Metadata {
	return r.slot.record.metadata
}

// Fields returns the formatted fields recorded so far.
func (r *SpanRef) Fields() string {
	return r.slot.fields.String()
}

// HasFields reports whether any field has been formatted.
func (r *SpanRef) HasFields() bool {
	return r.slot.record.hasFields
}

// Parent returns the parent span's ID, if any.
func (r *SpanRef) Parent() (ID, bool) {
	p := r.slot.record.parent
	return p, p.IsValid()
}

// TraceID returns the trace the span belongs to.
func (r *SpanRef) TraceID() string {
	return r.slot.record.traceID
}

// StartTime returns when the span was created.
func (r *SpanRef) StartTime() time.Time {
	return r.slot.record.start
}

// RefCount returns the span's current reference count.
func (r *SpanRef) RefCount() int64 {
	return r.slot.record.refs.Load()
}

// Snapshot copies the span's current state.
func (r *SpanRef) Snapshot() SpanData {
	rec := r.slot.record
	return SpanData{
		ID:        r.id,
		Parent:    rec.parent,
		TraceID:   rec.traceID,
		Name:      rec.name(),
		Metadata:  rec.metadata,
		Fields:    r.slot.fields.String(),
		StartTime: rec.start,
	}
}

// Release unlocks the span. The handle must not be used afterwards.
// Safe to call multiple times.
func (r *SpanRef) Release() {
	if r.slot == nil {
		return
	}
	r.slot.mu.RUnlock()
	r.slot = nil
}
