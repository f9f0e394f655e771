package spanz

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStoreMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s := newTestStore(t, WithMetrics(m), WithCapacity(4))
	ctx := context.Background()

	a := s.NewSpan(ctx, NewRootAttributes(rootMeta))
	b := s.NewSpan(ctx, NewRootAttributes(rootMeta))
	s.DropRef(a)
	c := s.NewSpan(ctx, NewRootAttributes(rootMeta))
	assert.Equal(t, a, c)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.SpansCreated))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SpansClosed))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SlotsReused))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SlabGrows))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SlabSlots))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.LiveSpans))

	s.DropRef(b)
	s.DropRef(c)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.LiveSpans))
}

func TestDefectMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s := NewStore(WithMetrics(m), WithLogger(zap.NewNop()), WithIDPoolSize(4))
	defer s.Close()

	s.CloneRef(42)
	s.DropRef(42)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SpanDefects.WithLabelValues("clone_missing")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SpanDefects.WithLabelValues("drop_missing")))
}

func TestDispatchMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	sub := newTestSubscriber(t, WithMetrics(m))

	sub.OnSpanClose(func(SpanData) { panic("handler bug") })
	sub.TryClose(sub.NewSpan(context.Background(), NewRootAttributes(rootMeta)))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HandlerPanics))
}

func TestMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	// Vectors without observed labels are not gathered.
	for _, name := range []string{
		"spanz_spans_created_total",
		"spanz_spans_closed_total",
		"spanz_live_spans",
		"spanz_slab_slots",
		"spanz_dropped_dispatch_total",
	} {
		assert.True(t, names[name], name)
	}

	assert.Panics(t, func() { NewMetrics(reg) }, "duplicate registration")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.spanCreated(true)
		m.spanClosed()
		m.slabGrew(1)
		m.allocRetried()
		m.defect("clone_missing")
		m.formatFailed()
		m.handlerPanicked()
		m.dispatchDropped()
	})
}
