// Package spanz provides the span storage engine behind a structured tracing subscriber.
//
// spanz records spans as instrumented code creates, enters, exits and closes
// them, and reconstructs the chain of entered spans (root to current) on
// demand for formatting. It is built for high-frequency allocation of
// short-lived spans from many goroutines with minimal contention.
//
// Core Components:
//   - Store: slab of independently locked slots with a lock-free free list.
//   - Subscriber: facade that forwards span lifecycle calls to the Store.
//   - Context: visitor that walks the current span's ancestry root first.
//   - Collector: buffers closed spans for inspection or export.
//
// Basic Usage:
//
//	sub := spanz.New()
//	defer sub.Close()
//
//	meta := &spanz.Metadata{Name: "handle_request", Level: spanz.LevelInfo}
//	id := sub.NewSpan(ctx, spanz.NewAttributes(meta, attribute.String("path", "/users")))
//	ctx = sub.Enter(ctx, id)
//
//	// Children created from ctx use id as their parent.
//	child := sub.NewSpan(ctx, spanz.NewAttributes(childMeta))
//
//	sub.Exit(ctx, id)
//	sub.TryClose(id)
//
// Identifiers:
//
// Span IDs are slot indices plus one. A closed span's ID is reused by a later
// span once its slot has been fully emptied, so holders must not keep IDs
// past their last reference.
//
// Thread Safety:
//
// Subscriber, Store and Collector are safe for concurrent use. The span stack
// attached to a context by Enter belongs to one goroutine; derive a fresh
// stack (WithStack) when handing work to another goroutine.
//
// Reference Counting:
//
// Every span starts with one reference held by its creator. CloneSpan adds a
// reference and TryClose releases one. Entering a span and being the parent
// of a live span each hold a reference, so ancestors stay alive exactly as
// long as their descendants need them.
//
// Resource Cleanup:
//
// Call sub.Close() to stop background goroutines and release the Store.
package spanz

// Key represents a span name.
type Key = string
