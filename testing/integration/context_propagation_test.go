package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/spanz"
	"go.opentelemetry.io/otel/attribute"
)

func TestFanOutAcrossGoroutines(t *testing.T) {
	sub := spanz.New(spanz.WithIDPoolSize(8))
	defer sub.Close()
	collector := NewMockCollector(t, sub)

	ctx := context.Background()
	batch := sub.NewSpan(ctx, spanz.NewAttributes(&spanz.Metadata{Name: "batch"}))
	ctx = sub.Enter(ctx, batch)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Each goroutine gets its own stack and names the batch explicitly.
			wctx := spanz.WithStack(context.Background())
			worker := sub.NewSpan(wctx, spanz.NewChildAttributes(batch, &spanz.Metadata{Name: "worker"}, attribute.Int("worker", i)))
			wctx = sub.Enter(wctx, worker)

			item := sub.NewSpan(wctx, spanz.NewAttributes(&spanz.Metadata{Name: "item"}))
			sub.TryClose(item)

			sub.Exit(wctx, worker)
			sub.TryClose(worker)
		}(i)
	}
	wg.Wait()

	sub.Exit(ctx, batch)
	require.True(t, sub.TryClose(batch))

	spans := collector.GetAll()
	require.Len(t, spans, 17)

	trees := BuildSpanTree(spans)
	require.Len(t, trees, 1, PrintSpanTree(trees))
	assert.Equal(t, spanz.Key("batch"), trees[0].Span.Name)
	assert.Len(t, trees[0].Children, 8)
	assert.Equal(t, 17, trees[0].Count())
	for _, span := range spans {
		assert.Equal(t, trees[0].Span.TraceID, span.TraceID)
	}
}

func TestStacksAreIsolatedPerContext(t *testing.T) {
	sub := spanz.New(spanz.WithIDPoolSize(8))
	defer sub.Close()

	a := spanz.WithStack(context.Background())
	b := spanz.WithStack(context.Background())

	spanA := sub.NewSpan(a, spanz.NewAttributes(&spanz.Metadata{Name: "a"}))
	a = sub.Enter(a, spanA)

	_, _, ok := sub.CurrentSpan(b)
	assert.False(t, ok)

	orphan := sub.NewSpan(b, spanz.NewAttributes(&spanz.Metadata{Name: "b"}))
	snapshot, ok := sub.Store().Snapshot(orphan)
	require.True(t, ok)
	assert.False(t, snapshot.HasParent())

	id, meta, ok := sub.CurrentSpan(a)
	require.True(t, ok)
	assert.Equal(t, spanA, id)
	assert.Equal(t, spanz.Key("a"), meta.Name)
}

func TestFormattedChain(t *testing.T) {
	sub := spanz.New(spanz.WithIDPoolSize(8))
	defer sub.Close()

	ctx := context.Background()
	for _, name := range []string{"server", "router", "handler"} {
		id := sub.NewSpan(ctx, spanz.NewAttributes(&spanz.Metadata{Name: name}, attribute.String("layer", name)))
		ctx = sub.Enter(ctx, id)
	}

	assert.Equal(t, []spanz.Key{"server", "router", "handler"}, sub.Context().Chain(ctx))

	var fields []string
	err := sub.Context().VisitSpans(ctx, func(_ spanz.ID, ref *spanz.SpanRef) error {
		fields = append(fields, ref.Fields())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{`layer="server"`, `layer="router"`, `layer="handler"`}, fields)
}
