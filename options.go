package spanz

import (
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

const defaultCapacity = 32

// Option configures a Store or Subscriber.
type Option func(*options)

type options struct {
	clock      clockz.Clock
	formatter  FieldFormatter
	logger     *zap.Logger
	metrics    *Metrics
	capacity   int
	idPoolSize int
}

func buildOptions(opts []Option) options {
	o := options{
		clock:      clockz.RealClock,
		formatter:  DefaultFields{},
		logger:     zap.NewNop(),
		capacity:   defaultCapacity,
		idPoolSize: DefaultConfig().idPoolSize(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock sets the clock used for span timestamps.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger used to report span bookkeeping defects.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithFormatter sets the formatter used to render span fields.
func WithFormatter(f FieldFormatter) Option {
	return func(o *options) {
		if f != nil {
			o.formatter = f
		}
	}
}

// WithMetrics sets the metrics the Store and Subscriber report to.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithCapacity sets the number of slots preallocated by the slab.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.capacity = n
		}
	}
}

// WithIDPoolSize sets how many trace IDs are generated ahead of time.
func WithIDPoolSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.idPoolSize = n
		}
	}
}
