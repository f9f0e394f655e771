package spanz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for a Store and its Subscriber.
// A nil *Metrics records nothing.
type Metrics struct {
	// Store metrics
	SpansCreated prometheus.Counter
	SpansClosed  prometheus.Counter
	SlotsReused  prometheus.Counter
	SlabGrows    prometheus.Counter
	AllocRetries prometheus.Counter
	LiveSpans    prometheus.Gauge
	SlabSlots    prometheus.Gauge
	SpanDefects  *prometheus.CounterVec
	FormatErrors prometheus.Counter

	// Dispatch metrics
	HandlerPanics   prometheus.Counter
	DroppedDispatch prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SpansCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "spanz_spans_created_total",
			Help: "Total number of spans stored",
		}),
		SpansClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "spanz_spans_closed_total",
			Help: "Total number of spans removed after their last reference was released",
		}),
		SlotsReused: factory.NewCounter(prometheus.CounterOpts{
			Name: "spanz_slots_reused_total",
			Help: "Total number of spans stored in a recycled slot",
		}),
		SlabGrows: factory.NewCounter(prometheus.CounterOpts{
			Name: "spanz_slab_grows_total",
			Help: "Total number of slots appended to the slab",
		}),
		AllocRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "spanz_alloc_retries_total",
			Help: "Total number of allocation attempts retried after losing a race",
		}),
		LiveSpans: factory.NewGauge(prometheus.GaugeOpts{
			Name: "spanz_live_spans",
			Help: "Number of spans currently stored",
		}),
		SlabSlots: factory.NewGauge(prometheus.GaugeOpts{
			Name: "spanz_slab_slots",
			Help: "Number of slots in the slab",
		}),
		SpanDefects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spanz_span_defects_total",
				Help: "Reference counting and lookup defects reported by callers",
			},
			[]string{"kind"},
		),
		FormatErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "spanz_format_errors_total",
			Help: "Total number of field formatting failures",
		}),
		HandlerPanics: factory.NewCounter(prometheus.CounterOpts{
			Name: "spanz_handler_panics_total",
			Help: "Total number of close handlers that panicked",
		}),
		DroppedDispatch: factory.NewCounter(prometheus.CounterOpts{
			Name: "spanz_dropped_dispatch_total",
			Help: "Total number of async close dispatches dropped by a full worker queue",
		}),
	}
}

func (m *Metrics) spanCreated(reused bool) {
	if m == nil {
		return
	}
	m.SpansCreated.Inc()
	m.LiveSpans.Inc()
	if reused {
		m.SlotsReused.Inc()
	}
}

func (m *Metrics) spanClosed() {
	if m == nil {
		return
	}
	m.SpansClosed.Inc()
	m.LiveSpans.Dec()
}

func (m *Metrics) slabGrew(slots int) {
	if m == nil {
		return
	}
	m.SlabGrows.Inc()
	m.SlabSlots.Set(float64(slots))
}

func (m *Metrics) allocRetried() {
	if m == nil {
		return
	}
	m.AllocRetries.Inc()
}

func (m *Metrics) defect(kind string) {
	if m == nil {
		return
	}
	m.SpanDefects.WithLabelValues(kind).Inc()
}

func (m *Metrics) formatFailed() {
	if m == nil {
		return
	}
	m.FormatErrors.Inc()
}

func (m *Metrics) handlerPanicked() {
	if m == nil {
		return
	}
	m.HandlerPanics.Inc()
}

func (m *Metrics) dispatchDropped() {
	if m == nil {
		return
	}
	m.DroppedDispatch.Inc()
}
