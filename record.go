package spanz

import (
	"sync/atomic"
	"time"
)

// spanRecord is the live state of a span stored in a full slot.
type spanRecord struct {
	start     time.Time
	metadata  *Metadata
	traceID   string
	parent    ID
	refs      atomic.Int64
	hasFields bool
}

func newSpanRecord(meta *Metadata, parent ID, traceID string, start time.Time) *spanRecord {
	r := &spanRecord{
		metadata: meta,
		parent:   parent,
		traceID:  traceID,
		start:    start,
	}
	r.refs.Store(1)
	return r
}

// cloneRef adds a reference and returns the count before the increment.
func (r *spanRecord) cloneRef() int64 {
	return r.refs.Add(1) - 1
}

// dropRef releases a reference and returns the count after the decrement.
func (r *spanRecord) dropRef() int64 {
	return r.refs.Add(-1)
}

func (r *spanRecord) name() string {
	if r.metadata == nil {
		return ""
	}
	return r.metadata.Name
}
