// Package app wires configuration, backend, property service and API
// servers into one process lifecycle.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	grpcapi "github.com/arkilian/catalogmeta/internal/api/grpc"
	httpapi "github.com/arkilian/catalogmeta/internal/api/http"
	"github.com/arkilian/catalogmeta/internal/backend/objectstore"
	"github.com/arkilian/catalogmeta/internal/backend/sqlite"
	"github.com/arkilian/catalogmeta/internal/catalogs"
	"github.com/arkilian/catalogmeta/internal/config"
	"github.com/arkilian/catalogmeta/internal/events"
	"github.com/arkilian/catalogmeta/internal/lifecycle"
	"github.com/arkilian/catalogmeta/internal/observability"
	"github.com/arkilian/catalogmeta/internal/server"
	"github.com/arkilian/catalogmeta/internal/storage"
	"google.golang.org/grpc"
)

const auditBufferSize = 256

// backend is what a configured store offers the lifecycle service.
type backend interface {
	lifecycle.Connector
	lifecycle.PartitionStore
}

// App manages the catalog metadata service lifecycle.
type App struct {
	cfg *config.Config

	// Shared resources
	service  *lifecycle.Service
	stats    *observability.ValidationStats
	metrics  *observability.Metrics
	notifier *events.Notifier
	shutdown *server.ShutdownManager

	// Servers
	httpServer   *http.Server
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener

	// Lifecycle
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new App with the given configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &App{cfg: cfg}, nil
}

// Start opens the backend and starts the configured servers.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.shutdown = server.NewShutdownManager(a.cfg.Shutdown.Timeout, a.cfg.Shutdown.DrainTimeout)

	if err := a.initService(ctx); err != nil {
		a.abort()
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	if err := a.startHTTP(); err != nil {
		a.abort()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if a.cfg.GRPC.Enabled {
		if err := a.startGRPC(); err != nil {
			a.abort()
			return fmt.Errorf("failed to start gRPC server: %w", err)
		}
	}

	a.wg.Add(2)
	go a.pruneStats(ctx)
	go a.auditLog(ctx, a.notifier.Subscribe("audit-log"))

	log.Printf("catalogmeta started: backend=%s, kinds=%d", a.cfg.Backend.Type, len(a.service.Registry().Names()))
	return nil
}

// initService opens the backend and builds the lifecycle service.
func (a *App) initService(ctx context.Context) error {
	store, err := a.openBackend(ctx)
	if err != nil {
		return err
	}

	overrides, err := a.cfg.KindOverrides()
	if err != nil {
		return err
	}
	registry, err := catalogs.Builtin(overrides)
	if err != nil {
		return fmt.Errorf("failed to build kind registry: %w", err)
	}

	a.stats = observability.NewValidationStats(a.cfg.Metrics.StatsWindow)
	recorder := &observability.Recorder{Stats: a.stats}
	if a.cfg.Metrics.Enabled {
		a.metrics = observability.NewMetrics(a.cfg.Metrics.Namespace)
		recorder.Metrics = a.metrics
	}

	a.notifier = events.NewNotifier(auditBufferSize)
	a.service = lifecycle.NewService(registry, store,
		lifecycle.WithPartitionStore(store),
		lifecycle.WithRecorder(recorder),
		lifecycle.WithNotifier(a.notifier),
	)
	return nil
}

// openBackend opens the configured store and registers it for shutdown.
func (a *App) openBackend(ctx context.Context) (backend, error) {
	switch a.cfg.Backend.Type {
	case config.BackendSQLite:
		store, err := sqlite.Open(a.cfg.Backend.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.shutdown.RegisterCloser("sqlite backend", store)
		log.Printf("Backend initialized: sqlite %s", a.cfg.Backend.SQLitePath)
		return store, nil

	case config.BackendLocal:
		local, err := storage.NewLocalStorage(a.cfg.Backend.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local storage: %w", err)
		}
		log.Printf("Backend initialized: local documents in %s", a.cfg.Backend.LocalPath)
		return objectstore.New(local, a.cfg.Backend.ReadConcurrency), nil

	case config.BackendS3:
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Backend.S3.Region != "" {
			s3Cfg.Region = a.cfg.Backend.S3.Region
		}
		s3Cfg.Endpoint = a.cfg.Backend.S3.Endpoint
		s3Cfg.UsePathStyle = a.cfg.Backend.S3.UsePathStyle
		s3, err := storage.NewS3Storage(ctx, a.cfg.Backend.S3.Bucket, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		log.Printf("Backend initialized: s3 bucket=%s region=%s endpoint=%s",
			a.cfg.Backend.S3.Bucket, s3Cfg.Region, s3Cfg.Endpoint)
		return objectstore.New(s3, a.cfg.Backend.ReadConcurrency), nil
	}
	return nil, fmt.Errorf("unsupported backend type: %s", a.cfg.Backend.Type)
}

// startHTTP starts the HTTP API server.
func (a *App) startHTTP() error {
	opts := []httpapi.RouterOption{httpapi.WithValidationStats(a.stats)}
	if a.metrics != nil {
		opts = append(opts, httpapi.WithMetrics(a.cfg.Metrics.Path, a.metrics.Handler()))
	}
	handler := server.ShutdownMiddleware(a.shutdown)(httpapi.NewRouter(a.service, opts...))

	a.httpServer = &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	var err error
	a.httpListener, err = net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on HTTP address: %w", err)
	}
	a.shutdown.RegisterCloser("http server", server.HTTPServerCloser(a.httpServer, 10*time.Second))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("HTTP server listening on %s", a.httpListener.Addr())
		if err := a.httpServer.Serve(a.httpListener); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()
	return nil
}

// startGRPC starts the gRPC property service.
func (a *App) startGRPC() error {
	a.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(server.UnaryShutdownInterceptor(a.shutdown)))
	grpcapi.NewPropertyServer(a.service).Register(a.grpcServer)

	var err error
	a.grpcListener, err = net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC address: %w", err)
	}

	a.shutdown.RegisterCloser("grpc server", server.GRPCServerCloser(a.grpcServer, 10*time.Second))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("gRPC server listening on %s", a.grpcListener.Addr())
		if err := a.grpcServer.Serve(a.grpcListener); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()
	return nil
}

// pruneStats drops stale validation failures until ctx is cancelled.
func (a *App) pruneStats(ctx context.Context) {
	defer a.wg.Done()

	interval := a.cfg.Metrics.StatsWindow
	if interval <= 0 || interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.stats.Prune()
		}
	}
}

// auditLog writes one line per committed change until ctx is cancelled.
func (a *App) auditLog(ctx context.Context, sub *events.Subscriber) {
	defer a.wg.Done()
	defer a.notifier.Unsubscribe(sub.ID)

	for {
		select {
		case <-ctx.Done():
			if dropped := a.notifier.Dropped(); dropped > 0 {
				log.Printf("audit: %d events dropped by slow subscribers", dropped)
			}
			return
		case ev := <-sub.Ch:
			switch ev.Type {
			case events.PartitionAdded:
				log.Printf("audit: op=%s %s entity=%s partition=%s", ev.OperationID, ev.Type, ev.Entity, ev.Partition)
			default:
				log.Printf("audit: op=%s %s %s entity=%s properties=%d", ev.OperationID, ev.Type, ev.Kind, ev.Entity, len(ev.Properties))
			}
		}
	}
}

// Stop drains in-flight requests, stops the servers and closes the backend.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	log.Printf("Initiating graceful shutdown...")

	if a.cancel != nil {
		a.cancel()
	}

	err := a.shutdown.Shutdown(ctx, "stop requested")

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("Shutdown timeout, some goroutines may not have finished")
	}

	log.Printf("catalogmeta stopped")
	return err
}

// abort releases whatever Start managed to open.
func (a *App) abort() {
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.shutdown.Shutdown(context.Background(), "startup failed"); err != nil {
		log.Printf("cleanup after failed start: %v", err)
	}
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}

// WaitForShutdown blocks until a shutdown signal is received or ctx is done.
func (a *App) WaitForShutdown(ctx context.Context) error {
	return a.shutdown.ListenForSignals(ctx)
}

// Service returns the property service. It is nil before Start.
func (a *App) Service() *lifecycle.Service { return a.service }

// Events returns the change notifier. It is nil before Start.
func (a *App) Events() *events.Notifier { return a.notifier }

// HTTPAddr returns the bound HTTP address, or "" before Start.
func (a *App) HTTPAddr() string {
	if a.httpListener == nil {
		return ""
	}
	return a.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" when gRPC is disabled.
func (a *App) GRPCAddr() string {
	if a.grpcListener == nil {
		return ""
	}
	return a.grpcListener.Addr().String()
}
