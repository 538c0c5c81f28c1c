package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/karshdev/lift-core/internal/bus"
	"github.com/karshdev/lift-core/internal/config"
	"github.com/karshdev/lift-core/internal/devices"
	"github.com/karshdev/lift-core/internal/encoder"
	"github.com/karshdev/lift-core/internal/eventstore"
	"github.com/karshdev/lift-core/internal/feedback"
	"github.com/karshdev/lift-core/internal/media"
	"github.com/karshdev/lift-core/internal/natsserver"
	"github.com/karshdev/lift-core/internal/session"
	"github.com/karshdev/lift-core/internal/transcribe"
)

// Runtime assembles the bus, event store, device registry, and session
// manager, and serves the HTTP API until the context is cancelled.
type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error
	ready         atomic.Bool
	wg            sync.WaitGroup

	natsServer *natsserver.EmbeddedServer
	busClient  *bus.Client
	store      *eventstore.Store
	registry   *devices.Registry
	manager    *session.Manager
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	ns, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	r.natsServer = ns

	busCfg := r.cfg.Bus
	if busCfg.Embedded {
		busCfg.Servers = []string{fmt.Sprintf("nats://127.0.0.1:%d", busCfg.Port)}
	}
	busClient, err := bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		r.natsServer.Shutdown()
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busClient = busClient

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		r.teardown()
		return fmt.Errorf("failed to open event store: %w", err)
	}
	r.store = store

	registry, err := devices.NewRegistry(ctx, r.cfg.Node, busClient, r.logger)
	if err != nil {
		r.teardown()
		return fmt.Errorf("failed to start device registry: %w", err)
	}
	r.registry = registry

	manager, err := r.buildSessionManager()
	if err != nil {
		r.teardown()
		return fmt.Errorf("failed to build session manager: %w", err)
	}
	r.manager = manager

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	newAPI(r.manager, r.registry, r.logger).register(mux)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.serve(r.httpServer, "http server")

	if metricsHandler != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.serve(r.metricsServer, "metrics server")
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	r.manager.Shutdown(shutdownCtx)
	r.teardown()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) buildSessionManager() (*session.Manager, error) {
	var source media.Source
	switch r.cfg.Media.Mode {
	case "mock":
		source = media.NewMockSource()
	default:
		source = media.NewBusSource(r.cfg.Media, r.busClient, r.logger)
	}

	enc, err := encoder.FromConfig(r.cfg.Encoder)
	if err != nil {
		return nil, err
	}
	transcriber, err := transcribe.FromConfig(r.cfg.Transcribe)
	if err != nil {
		return nil, err
	}
	generator, err := feedback.FromConfig(r.cfg.Feedback)
	if err != nil {
		return nil, err
	}

	return session.NewManager(r.cfg, session.Deps{
		Source:      source,
		Encoder:     enc,
		Transcriber: transcriber,
		Generator:   generator,
		Store:       r.store,
		Logger:      r.logger,
	})
}

func (r *Runtime) serve(srv *http.Server, name string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error(name+" failed", slog.String("error", err.Error()))
		}
	}()
}

// teardown releases infrastructure in reverse start order; each member is
// nil-safe so it doubles as the partial-start cleanup path.
func (r *Runtime) teardown() {
	if r.registry != nil {
		r.registry.Close()
		r.registry = nil
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Warn("event store close error", slog.String("error", err.Error()))
		}
		r.store = nil
	}
	if r.busClient != nil {
		r.busClient.Close()
		r.busClient = nil
	}
	if r.natsServer != nil {
		r.natsServer.Shutdown()
		r.natsServer = nil
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
