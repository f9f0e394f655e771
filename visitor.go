package spanz

import (
	"bytes"
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// Context is the Subscriber's view of the current span context, handed to
// formatters that render a whole trace.
type Context struct {
	store     *Store
	formatter FieldFormatter
}

// NewContext returns a view over store that formats fields with f.
func NewContext(store *Store, f FieldFormatter) *Context {
	if f == nil {
		f = DefaultFields{}
	}
	return &Context{store: store, formatter: f}
}

// VisitSpans calls fn for each span in ctx's current trace.
//
// Spans are visited in order, beginning with the root of the trace and
// ending with the current span. If fn returns an error, the walk stops and
// the error is returned. Outside of any span, fn is not called.
//
// Every visited span stays read-locked until VisitSpans returns.
func (c *Context) VisitSpans(ctx context.Context, fn func(ID, *SpanRef) error) error {
	id, ok := Current(ctx)
	if !ok {
		return nil
	}
	ref, ok := c.store.Get(id)
	if !ok {
		c.store.fault("missing span for the current span; this is a bug", "visit_missing", id)
		return nil
	}
	// The call stack walks the chain in reverse, so no buffer is needed.
	return c.withParent(ref, InvalidID, fn)
}

func (c *Context) withParent(ref *SpanRef, last ID, fn func(ID, *SpanRef) error) error {
	defer ref.Release()

	if parent, ok := ref.Parent(); ok && parent != last {
		if p, ok := c.store.Get(parent); ok {
			if err := c.withParent(p, ref.ID(), fn); err != nil {
				return err
			}
		} else {
			c.store.fault("missing span for a parent; this is a bug", "visit_missing", parent)
		}
	}
	return fn(ref.ID(), ref)
}

// WithCurrent calls fn with the current span of ctx.
// Returns false without calling fn outside of any span.
func (c *Context) WithCurrent(ctx context.Context, fn func(ID, *SpanRef)) bool {
	id, ok := Current(ctx)
	if !ok {
		return false
	}
	if !c.store.View(id, func(ref *SpanRef) { fn(id, ref) }) {
		c.store.fault("missing span for the current span; this is a bug", "visit_missing", id)
		return false
	}
	return true
}

// FormatFields renders values with the Subscriber's formatter.
func (c *Context) FormatFields(buf *bytes.Buffer, values []attribute.KeyValue) error {
	return c.formatter.FormatFields(buf, values)
}

// Chain returns the names of the spans in ctx's current trace, root first.
func (c *Context) Chain(ctx context.Context) []Key {
	var names []Key
	_ = c.VisitSpans(ctx, func(_ ID, ref *SpanRef) error {
		names = append(names, ref.Name())
		return nil
	})
	return names
}
