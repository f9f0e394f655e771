package integration

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/spanz"
)

// MockCollector wraps a real collector with test utilities.
// Provides synchronous collection and verification helpers.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []spanz.SpanData
	*spanz.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a synchronous collector and subscribes it to sub.
func NewMockCollector(t *testing.T, sub *spanz.Subscriber) *MockCollector {
	collector := spanz.NewCollector(t.Name(), 1000)
	collector.SetSyncMode(true)
	sub.OnSpanClose(collector.Collect)
	t.Cleanup(collector.Close)
	return &MockCollector{
		Collector: collector,
		t:         t,
	}
}

// GetAll returns every span collected so far, in close order.
func (m *MockCollector) GetAll() []spanz.SpanData {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.exported = append(m.exported, m.Collector.Export()...)
	all := make([]spanz.SpanData, len(m.exported))
	copy(all, m.exported)
	return all
}

// WaitForSpans waits until at least expected spans were collected.
func (m *MockCollector) WaitForSpans(expected int, timeout time.Duration) []spanz.SpanData {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if spans := m.GetAll(); len(spans) >= expected {
			return spans
		}
		time.Sleep(5 * time.Millisecond)
	}
	spans := m.GetAll()
	m.t.Errorf("Timeout waiting for spans: expected %d, got %d", expected, len(spans))
	return spans
}

// AssertSpanNamed returns the last closed span with the given name.
func (m *MockCollector) AssertSpanNamed(name spanz.Key) spanz.SpanData {
	spans := m.GetAll()
	for i := len(spans) - 1; i >= 0; i-- {
		if spans[i].Name == name {
			return spans[i]
		}
	}
	m.t.Errorf("Span named '%s' not found", name)
	return spanz.SpanData{}
}

// SpanTree is a closed span and the children that closed before it.
type SpanTree struct {
	Span     spanz.SpanData
	Children []*SpanTree
}

// BuildSpanTree rebuilds the span hierarchy from spans in close order.
//
// IDs are recycled, so a parent is matched by position: a parent outlives
// its children and its slot cannot be reused while they are open. When spans
// close on one goroutine, the first span closing with the parent's ID after a
// child is that child's parent.
func BuildSpanTree(spans []spanz.SpanData) []*SpanTree {
	pending := make(map[spanz.ID][]*SpanTree)
	roots := make([]*SpanTree, 0)

	for i := range spans {
		node := &SpanTree{Span: spans[i], Children: pending[spans[i].ID]}
		delete(pending, spans[i].ID)

		if spans[i].HasParent() {
			pending[spans[i].Parent] = append(pending[spans[i].Parent], node)
		} else {
			roots = append(roots, node)
		}
	}
	return roots
}

// Count returns the number of spans in the tree.
func (n *SpanTree) Count() int {
	total := 1
	for _, child := range n.Children {
		total += child.Count()
	}
	return total
}

// PrintSpanTree formats span trees for debugging.
func PrintSpanTree(trees []*SpanTree) string {
	var sb strings.Builder
	for _, tree := range trees {
		printTreeNode(&sb, tree, 0)
	}
	return sb.String()
}

func printTreeNode(sb *strings.Builder, node *SpanTree, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(sb, "%s%s [%s] (%.2fms)\n",
		indent, node.Span.Name, node.Span.Fields, node.Span.Duration.Seconds()*1000)
	for _, child := range node.Children {
		printTreeNode(sb, child, depth+1)
	}
}
