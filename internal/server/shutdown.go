// Package server coordinates graceful shutdown of the catalog service:
// signal handling, draining in-flight HTTP and gRPC requests and closing
// backends.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Default budgets used when a zero duration is given.
const (
	DefaultShutdownTimeout = 30 * time.Second
	DefaultDrainTimeout    = 15 * time.Second
)

type namedCloser struct {
	name string
	io.Closer
}

// ShutdownManager admits requests until shutdown begins, then waits for the
// admitted ones to finish and closes registered resources.
type ShutdownManager struct {
	timeout      time.Duration
	drainTimeout time.Duration

	mu       sync.Mutex
	inFlight int64
	draining bool
	idle     chan struct{}
	idleOnce sync.Once
	closers  []namedCloser

	done     chan struct{}
	doneOnce sync.Once
}

// NewShutdownManager creates a manager. timeout bounds the whole shutdown;
// drainTimeout bounds the wait for in-flight requests.
func NewShutdownManager(timeout, drainTimeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}
	return &ShutdownManager{
		timeout:      timeout,
		drainTimeout: drainTimeout,
		idle:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// RegisterCloser adds a resource closed during shutdown. Resources close in
// reverse registration order, so servers registered after the backend stop
// before it.
func (sm *ShutdownManager) RegisterCloser(name string, c io.Closer) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.closers = append(sm.closers, namedCloser{name: name, Closer: c})
}

// ListenForSignals blocks until SIGTERM or SIGINT arrives, ctx is done, or
// Shutdown is called elsewhere, then shuts down.
func (sm *ShutdownManager) ListenForSignals(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		return sm.Shutdown(ctx, fmt.Sprintf("received signal: %v", sig))
	case <-ctx.Done():
		return sm.Shutdown(context.Background(), "context cancelled")
	case <-sm.done:
		return nil
	}
}

// Shutdown stops admitting requests, waits for in-flight ones and closes every
// registered resource. Only the first call does any work; later calls return
// nil immediately.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	first := false
	sm.doneOnce.Do(func() { first = true })
	if !first {
		return nil
	}

	log.Printf("server: shutting down (%s)", reason)
	ctx, cancel := context.WithTimeout(ctx, sm.timeout)
	defer cancel()

	sm.mu.Lock()
	sm.draining = true
	if sm.inFlight == 0 {
		sm.markIdle()
	}
	closers := append([]namedCloser(nil), sm.closers...)
	sm.mu.Unlock()
	close(sm.done)

	var errs []error
	if err := sm.drain(ctx); err != nil {
		errs = append(errs, err)
	}
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if err := c.Close(); err != nil {
			log.Printf("server: close %s: %v", c.name, err)
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
			continue
		}
		log.Printf("server: closed %s", c.name)
	}
	return errors.Join(errs...)
}

func (sm *ShutdownManager) drain(ctx context.Context) error {
	timer := time.NewTimer(sm.drainTimeout)
	defer timer.Stop()

	select {
	case <-sm.idle:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	if n := sm.InFlightCount(); n > 0 {
		return fmt.Errorf("drain: %d requests still in flight", n)
	}
	return nil
}

// markIdle must be called with mu held.
func (sm *ShutdownManager) markIdle() {
	sm.idleOnce.Do(func() { close(sm.idle) })
}

// TrackRequest admits a request. It returns false once shutdown has begun.
func (sm *ShutdownManager) TrackRequest() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.draining {
		return false
	}
	sm.inFlight++
	return true
}

// UntrackRequest marks an admitted request as finished.
func (sm *ShutdownManager) UntrackRequest() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.inFlight--
	if sm.draining && sm.inFlight == 0 {
		sm.markIdle()
	}
}

// IsShuttingDown reports whether shutdown has begun.
func (sm *ShutdownManager) IsShuttingDown() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.draining
}

// InFlightCount returns the number of admitted, unfinished requests.
func (sm *ShutdownManager) InFlightCount() int64 {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.inFlight
}

// Done is closed when shutdown begins.
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.done
}

// ShutdownMiddleware tracks HTTP requests and rejects new ones with 503 once
// shutdown has begun.
func ShutdownMiddleware(sm *ShutdownManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sm.TrackRequest() {
				w.Header().Set("Connection", "close")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				io.WriteString(w, `{"error":"service is shutting down","code":"SHUTTING_DOWN"}`+"\n")
				return
			}
			defer sm.UntrackRequest()
			next.ServeHTTP(w, r)
		})
	}
}

// UnaryShutdownInterceptor is the gRPC counterpart of ShutdownMiddleware.
// Rejected calls fail with codes.Unavailable.
func UnaryShutdownInterceptor(sm *ShutdownManager) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !sm.TrackRequest() {
			return nil, status.Error(codes.Unavailable, "service is shutting down")
		}
		defer sm.UntrackRequest()
		return handler(ctx, req)
	}
}

// HTTPServerCloser shuts srv down within timeout when closed.
func HTTPServerCloser(srv *http.Server, timeout time.Duration) io.Closer {
	return CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

// GRPCServerCloser stops srv gracefully, falling back to a hard stop after
// timeout.
func GRPCServerCloser(srv *grpc.Server, timeout time.Duration) io.Closer {
	return CloserFunc(func() error {
		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
			return nil
		case <-time.After(timeout):
			srv.Stop()
			return fmt.Errorf("grpc graceful stop exceeded %v", timeout)
		}
	})
}

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

// Close calls f.
func (f CloserFunc) Close() error {
	return f()
}
