package deferred

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/nfrund/classhub/internal/metrics"
	"github.com/nfrund/classhub/internal/presence"
	"github.com/nfrund/classhub/internal/pubsub"
)

type options struct {
	clock     clockwork.Clock
	window    time.Duration
	publisher pubsub.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	newID     func() string
}

// Option configures a Queue or an Engine.
type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		clock:  clockwork.NewRealClock(),
		window: presence.DefaultWindow,
		logger: slog.Default().With("service", "deferred"),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock sets the time source.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithWindow sets the liveness window used to decide a target is online.
func WithWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.window = d
		}
	}
}

// WithPublisher announces deliveries on the event bus.
func WithPublisher(p pubsub.Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithMetrics records scheduling and delivery metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithIDGenerator replaces the uuid generator used for new records.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}
