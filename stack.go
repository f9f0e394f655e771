package spanz

import (
	"context"
)

// stackKeyType is a private type for context keys to avoid collisions.
type stackKeyType string

const (
	stackKey stackKeyType = "spanz"
)

type contextID struct {
	id        ID
	duplicate bool
}

// SpanStack tracks the spans entered on one goroutine.
// A span entered while already on the stack is recorded as a duplicate and
// is invisible to Current, so re-entering a span never makes it its own
// parent. SpanStack is NOT thread-safe.
type SpanStack struct {
	ids   map[ID]struct{}
	stack []contextID
}

func newSpanStack() *SpanStack {
	return &SpanStack{ids: make(map[ID]struct{})}
}

// push adds id and reports whether it was already on the stack.
func (s *SpanStack) push(id ID) bool {
	_, duplicate := s.ids[id]
	if !duplicate {
		s.ids[id] = struct{}{}
	}
	s.stack = append(s.stack, contextID{id: id, duplicate: duplicate})
	return duplicate
}

// pop removes the top entry if it is expected.
// Returns ok=false, leaving the stack untouched, on a mismatch.
func (s *SpanStack) pop(expected ID) (duplicate, ok bool) {
	n := len(s.stack)
	if n == 0 || s.stack[n-1].id != expected {
		return false, false
	}
	top := s.stack[n-1]
	s.stack = s.stack[:n-1]
	if !top.duplicate {
		delete(s.ids, top.id)
	}
	return top.duplicate, true
}

// Current returns the innermost non-duplicate span.
func (s *SpanStack) Current() (ID, bool) {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if !s.stack[i].duplicate {
			return s.stack[i].id, true
		}
	}
	return InvalidID, false
}

// Len returns the number of entries, duplicates included.
func (s *SpanStack) Len() int {
	return len(s.stack)
}

// Contains reports whether id has been entered and not yet exited.
func (s *SpanStack) Contains(id ID) bool {
	_, ok := s.ids[id]
	return ok
}

// WithStack returns a context carrying a new, empty span stack.
// Use it when starting a goroutine that enters spans of its own.
func WithStack(parent context.Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, stackKey, newSpanStack())
}

// StackFrom returns the span stack carried by ctx, or nil.
func StackFrom(ctx context.Context) *SpanStack {
	if ctx == nil {
		return nil
	}
	if stack, ok := ctx.Value(stackKey).(*SpanStack); ok {
		return stack
	}
	return nil
}

// Current returns the span currently entered on ctx's stack.
func Current(ctx context.Context) (ID, bool) {
	stack := StackFrom(ctx)
	if stack == nil {
		return InvalidID, false
	}
	return stack.Current()
}
