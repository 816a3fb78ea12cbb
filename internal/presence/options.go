package presence

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nfrund/classhub/internal/metrics"
	"github.com/nfrund/classhub/internal/pubsub"
)

type options struct {
	clock     clockwork.Clock
	heartbeat time.Duration
	window    time.Duration
	publisher pubsub.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures a Session or a Directory.
type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		clock:     clockwork.NewRealClock(),
		heartbeat: DefaultHeartbeat,
		window:    DefaultWindow,
		logger:    slog.Default().With("service", "presence"),
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

// WithHeartbeat sets the session heartbeat interval.
func WithHeartbeat(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.heartbeat = d
		}
	}
}

// WithWindow sets the liveness window.
func WithWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.window = d
		}
	}
}

// WithPublisher makes the directory announce online and offline transitions.
func WithPublisher(p pubsub.Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithMetrics records heartbeats and online counts.
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
