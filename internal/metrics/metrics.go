// Package metrics holds the Prometheus instruments of the presence and
// messaging core. A nil *Metrics is valid and records nothing.
package metrics

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "classhub"
)

// Metrics holds all application metrics
type Metrics struct {
	// Deferred delivery
	DeferredScheduledTotal prometheus.Counter
	DeferredDeliveredTotal prometheus.Counter
	DeferredConflictsTotal prometheus.Counter
	DeferredErrorsTotal    prometheus.Counter
	DeferredDeliveryDelay  prometheus.Histogram
	DeferredPending        prometheus.Gauge

	// Presence
	PresenceHeartbeatsTotal *prometheus.CounterVec
	PresenceOnlineUsers     prometheus.Gauge

	// Typing and messages
	TypingWritesTotal *prometheus.CounterVec
	MessagesSentTotal *prometheus.CounterVec
	MessagesReadTotal prometheus.Counter

	// Store
	StoreOperationDuration *prometheus.HistogramVec
	StoreOperationErrors   *prometheus.CounterVec

	logger *slog.Logger
}

// New creates and registers all metrics with the default registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, nil)
}

// NewWithRegistry creates and registers all metrics with a custom registry
func NewWithRegistry(registerer prometheus.Registerer, logger *slog.Logger) *Metrics {
	factory := promauto.With(registerer)
	if logger == nil {
		logger = slog.Default().With("service", "metrics")
	}

	return &Metrics{
		DeferredScheduledTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deferred_scheduled_total",
			Help:      "Total number of deferred messages scheduled",
		}),
		DeferredDeliveredTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deferred_delivered_total",
			Help:      "Total number of deferred messages delivered",
		}),
		DeferredConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deferred_delivery_conflicts_total",
			Help:      "Total number of delivery attempts that lost to a concurrent delivery",
		}),
		DeferredErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deferred_delivery_errors_total",
			Help:      "Total number of delivery attempts that failed",
		}),
		DeferredDeliveryDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deferred_delivery_delay_seconds",
			Help:      "Time between scheduling and delivery of a deferred message",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		DeferredPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deferred_pending",
			Help:      "Pending deferred messages known to the delivery engine",
		}),

		PresenceHeartbeatsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_heartbeats_total",
			Help:      "Total number of presence heartbeats written",
		}, []string{"result"}),
		PresenceOnlineUsers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "presence_online_users",
			Help:      "Users considered effectively online at the last evaluation",
		}),

		TypingWritesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "typing_writes_total",
			Help:      "Total number of typing indicator writes",
		}, []string{"state"}),
		MessagesSentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total number of chat messages sent",
		}, []string{"kind"}),
		MessagesReadTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_read_total",
			Help:      "Total number of messages marked read",
		}),

		StoreOperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Document store operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation", "collection"}),
		StoreOperationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operation_errors_total",
			Help:      "Total number of failed document store operations",
		}, []string{"operation", "collection"}),

		logger: logger,
	}
}

// safeExecute keeps a misbehaving collector from taking down the caller.
func (m *Metrics) safeExecute(operation string, fn func()) {
	if m == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Panic in metrics operation", "operation", operation, "panic", r)
		}
	}()
	fn()
}
