// Package app wires the classhub services together. Services are built lazily
// by a samber/do container the first time they are requested.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/do/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/nfrund/classhub/internal/config"
	"github.com/nfrund/classhub/internal/deferred"
	"github.com/nfrund/classhub/internal/docstore"
	"github.com/nfrund/classhub/internal/docstore/memory"
	"github.com/nfrund/classhub/internal/docstore/surreal"
	"github.com/nfrund/classhub/internal/domain"
	"github.com/nfrund/classhub/internal/messaging"
	"github.com/nfrund/classhub/internal/metrics"
	"github.com/nfrund/classhub/internal/presence"
	"github.com/nfrund/classhub/internal/pubsub"
	"github.com/nfrund/classhub/internal/typing"
)

// App is the service container behind the CLI and any embedding shell.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	injector *do.RootScope

	mu      sync.Mutex
	closers []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// New registers every service provider. Nothing is connected until a service
// is first requested.
func New(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger, injector: do.New()}

	do.ProvideValue(a.injector, cfg)
	do.ProvideValue(a.injector, logger)
	do.Provide(a.injector, a.provideRegistry)
	do.Provide(a.injector, a.provideMetrics)
	do.Provide(a.injector, a.provideTracer)
	do.Provide(a.injector, a.provideBus)
	do.Provide(a.injector, a.provideStore)
	do.Provide(a.injector, a.provideDirectory)
	do.Provide(a.injector, a.provideQueue)
	do.Provide(a.injector, a.provideMessaging)
	do.Provide(a.injector, a.provideTyping)
	return a
}

func (a *App) onShutdown(name string, fn func(ctx context.Context) error) {
	a.mu.Lock()
	a.closers = append(a.closers, closer{name: name, fn: fn})
	a.mu.Unlock()
}

func (a *App) provideRegistry(do.Injector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, nil
}

func (a *App) provideMetrics(i do.Injector) (*metrics.Metrics, error) {
	reg := do.MustInvoke[*prometheus.Registry](i)
	return metrics.NewWithRegistry(reg, a.logger.With("service", "metrics")), nil
}

func (a *App) provideTracer(do.Injector) (trace.Tracer, error) {
	tracer, shutdown, err := pubsub.SetupOTel(context.Background(), pubsub.TracingConfig{
		Enabled:     a.cfg.GetTracingEnabled(),
		ServiceName: a.cfg.GetTracingServiceName(),
		ZipkinURL:   a.cfg.GetZipkinURL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	a.onShutdown("tracer", shutdown)
	return tracer, nil
}

func (a *App) provideBus(i do.Injector) (*pubsub.WatermillBridge, error) {
	bus := pubsub.NewWatermillBridge(pubsub.WithTracer(do.MustInvoke[trace.Tracer](i)))
	a.onShutdown("pubsub", func(context.Context) error { return bus.Close() })
	return bus, nil
}

func (a *App) provideStore(i do.Injector) (docstore.Store, error) {
	var store docstore.Store
	switch a.cfg.GetStoreDriver() {
	case config.DriverMemory:
		store = memory.New(memory.WithLogger(a.logger.With("service", "docstore.memory")))
	case config.DriverSurreal:
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.GetDBExecuteTimeout())
		defer cancel()
		s, err := surreal.Open(ctx, a.cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown store driver %q", a.cfg.GetStoreDriver())
	}
	a.onShutdown("docstore", func(context.Context) error { return store.Close() })
	a.logger.Info("Document store ready", "driver", a.cfg.GetStoreDriver())
	return docstore.Instrument(store, do.MustInvoke[*metrics.Metrics](i)), nil
}

func (a *App) presenceOptions(i do.Injector) []presence.Option {
	return []presence.Option{
		presence.WithHeartbeat(a.cfg.GetPresenceHeartbeat()),
		presence.WithWindow(a.cfg.GetPresenceWindow()),
		presence.WithPublisher(do.MustInvoke[*pubsub.WatermillBridge](i)),
		presence.WithMetrics(do.MustInvoke[*metrics.Metrics](i)),
		presence.WithLogger(a.logger.With("service", "presence")),
	}
}

func (a *App) deferredOptions(i do.Injector) []deferred.Option {
	return []deferred.Option{
		deferred.WithWindow(a.cfg.GetPresenceWindow()),
		deferred.WithPublisher(do.MustInvoke[*pubsub.WatermillBridge](i)),
		deferred.WithMetrics(do.MustInvoke[*metrics.Metrics](i)),
		deferred.WithLogger(a.logger.With("service", "deferred")),
	}
}

func (a *App) provideDirectory(i do.Injector) (*presence.Directory, error) {
	d := presence.NewDirectory(do.MustInvoke[docstore.Store](i), a.presenceOptions(i)...)
	a.onShutdown("presence.directory", func(context.Context) error {
		d.Stop()
		return nil
	})
	return d, nil
}

func (a *App) provideQueue(i do.Injector) (*deferred.Queue, error) {
	return deferred.NewQueue(do.MustInvoke[docstore.Store](i), a.deferredOptions(i)...), nil
}

func (a *App) provideMessaging(i do.Injector) (*messaging.Service, error) {
	return messaging.NewService(do.MustInvoke[docstore.Store](i),
		messaging.WithMetrics(do.MustInvoke[*metrics.Metrics](i)),
		messaging.WithLogger(a.logger.With("service", "messaging")),
	), nil
}

func (a *App) provideTyping(i do.Injector) (*typing.Coordinator, error) {
	c := typing.NewCoordinator(do.MustInvoke[docstore.Store](i),
		typing.WithIdle(a.cfg.GetTypingIdle()),
		typing.WithMetrics(do.MustInvoke[*metrics.Metrics](i)),
		typing.WithLogger(a.logger.With("service", "typing")),
	)
	a.onShutdown("typing", func(context.Context) error {
		c.Close()
		return nil
	})
	return c, nil
}

// Config returns the configuration the container was built with.
func (a *App) Config() *config.Config { return a.cfg }

// Store returns the instrumented document store.
func (a *App) Store() (docstore.Store, error) { return do.Invoke[docstore.Store](a.injector) }

// Bus returns the event bus.
func (a *App) Bus() (*pubsub.WatermillBridge, error) {
	return do.Invoke[*pubsub.WatermillBridge](a.injector)
}

// Metrics returns the metric set.
func (a *App) Metrics() (*metrics.Metrics, error) { return do.Invoke[*metrics.Metrics](a.injector) }

// Directory returns the shared presence directory.
func (a *App) Directory() (*presence.Directory, error) {
	return do.Invoke[*presence.Directory](a.injector)
}

// Queue returns the deferred message queue.
func (a *App) Queue() (*deferred.Queue, error) { return do.Invoke[*deferred.Queue](a.injector) }

// Messaging returns the message stream service.
func (a *App) Messaging() (*messaging.Service, error) {
	return do.Invoke[*messaging.Service](a.injector)
}

// Typing returns the typing coordinator.
func (a *App) Typing() (*typing.Coordinator, error) {
	return do.Invoke[*typing.Coordinator](a.injector)
}

// NewSession creates a presence session for the signed-in user.
func (a *App) NewSession(uid domain.UserIdentity, displayName string) (*presence.Session, error) {
	store, err := a.Store()
	if err != nil {
		return nil, err
	}
	return presence.NewSession(store, uid, displayName, a.presenceOptions(a.injector)...), nil
}

// NewEngine creates a delivery engine for the signed-in user.
func (a *App) NewEngine(sender domain.Sender) (*deferred.Engine, error) {
	store, err := a.Store()
	if err != nil {
		return nil, err
	}
	return deferred.NewEngine(store, sender, a.deferredOptions(a.injector)...), nil
}

// MetricsHandler serves the Prometheus registry.
func (a *App) MetricsHandler() (http.Handler, error) {
	reg, err := do.Invoke[*prometheus.Registry](a.injector)
	if err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

// Shutdown releases every service that was built, newest first.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("Failed to shut down service", "service", c.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	if report := a.injector.ShutdownWithContext(ctx); report != nil && len(report.Errors) > 0 {
		errs = append(errs, report)
	}
	return errors.Join(errs...)
}
