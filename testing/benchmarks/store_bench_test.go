package benchmarks

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/zoobzio/spanz"
	"go.opentelemetry.io/otel/attribute"
)

var benchMeta = &spanz.Metadata{Name: "bench", Target: "benchmarks", Level: spanz.LevelInfo}

// BenchmarkSpanLifecycle measures create and close of a root span.
func BenchmarkSpanLifecycle(b *testing.B) {
	sub := spanz.New()
	defer sub.Close()
	ctx := context.Background()
	attrs := spanz.NewRootAttributes(benchMeta)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sub.TryClose(sub.NewSpan(ctx, attrs))
	}
}

// BenchmarkSpanWithFields measures span creation with formatted attributes.
func BenchmarkSpanWithFields(b *testing.B) {
	sub := spanz.New()
	defer sub.Close()
	ctx := context.Background()
	attrs := spanz.NewRootAttributes(benchMeta,
		attribute.String("http.method", "GET"),
		attribute.Int("http.status_code", 200),
		attribute.Bool("cache.hit", true),
	)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := sub.NewSpan(ctx, attrs)
		sub.Record(id, attribute.Int64("bytes", int64(i)))
		sub.TryClose(id)
	}
}

// BenchmarkNestedSpans measures enter, child creation and cascading close.
func BenchmarkNestedSpans(b *testing.B) {
	for _, depth := range []int{1, 5, 20} {
		b.Run(fmt.Sprintf("depth-%d", depth), func(b *testing.B) {
			sub := spanz.New()
			defer sub.Close()
			ids := make([]spanz.ID, depth)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				ctx := spanz.WithStack(context.Background())
				for d := 0; d < depth; d++ {
					ids[d] = sub.NewSpan(ctx, spanz.NewAttributes(benchMeta))
					ctx = sub.Enter(ctx, ids[d])
				}
				for d := depth - 1; d >= 0; d-- {
					sub.Exit(ctx, ids[d])
					sub.TryClose(ids[d])
				}
			}
		})
	}
}

// BenchmarkConcurrentSpanCreation measures contention on the free list.
func BenchmarkConcurrentSpanCreation(b *testing.B) {
	for _, concurrency := range []int{1, 8, 64} {
		b.Run(fmt.Sprintf("concurrent-%d", concurrency), func(b *testing.B) {
			sub := spanz.New()
			defer sub.Close()
			attrs := spanz.NewRootAttributes(benchMeta)

			perWorker := b.N / concurrency
			if perWorker == 0 {
				perWorker = 1
			}

			var wg sync.WaitGroup
			b.ResetTimer()
			for w := 0; w < concurrency; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ctx := context.Background()
					for j := 0; j < perWorker; j++ {
						sub.TryClose(sub.NewSpan(ctx, attrs))
					}
				}()
			}
			wg.Wait()
			b.ReportMetric(float64(sub.Store().Stats().Slots), "slots")
		})
	}
}

// BenchmarkCollectorDispatch measures close dispatch into a collector.
func BenchmarkCollectorDispatch(b *testing.B) {
	sub := spanz.New()
	defer sub.Close()
	collector := spanz.NewCollector("bench", 1024)
	defer collector.Close()
	sub.OnSpanClose(collector.Collect)

	ctx := context.Background()
	attrs := spanz.NewRootAttributes(benchMeta)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sub.TryClose(sub.NewSpan(ctx, attrs))
		if i%512 == 0 {
			collector.Export()
		}
	}
	b.ReportMetric(float64(collector.DroppedCount()), "dropped")
}

// BenchmarkVisitSpans measures walking the current span chain.
func BenchmarkVisitSpans(b *testing.B) {
	sub := spanz.New()
	defer sub.Close()

	ctx := context.Background()
	for d := 0; d < 10; d++ {
		ctx = sub.Enter(ctx, sub.NewSpan(ctx, spanz.NewAttributes(benchMeta)))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = sub.Context().VisitSpans(ctx, func(spanz.ID, *spanz.SpanRef) error { return nil })
	}
}
