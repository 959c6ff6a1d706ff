package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhuss/streamgate/pkg/observability"
	"github.com/rhuss/streamgate/pkg/transport"
)

const shutdownGrace = 2 * time.Second

// Server wraps an http.Server with the transport adapter and manages
// the full lifecycle including startup and graceful shutdown.
type Server struct {
	httpServer *http.Server
	adapter    *Adapter
	config     ServerConfig
	logger     *slog.Logger
}

// ServerConfig holds configuration for the transport server.
type ServerConfig struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	ShutdownTimeout   time.Duration
	Adapter           Config
	Logger            *slog.Logger

	// HTTPMiddleware wraps the adapter's handler, first entry outermost.
	// Authentication is installed here.
	HTTPMiddleware []func(http.Handler) http.Handler

	// OnShutdown runs after the listener stopped and streams were canceled,
	// in order, with the remaining shutdown budget.
	OnShutdown []func(context.Context) error
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:              ":8080",
		ReadHeaderTimeout: 30 * time.Second,
		WriteTimeout:      120 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		Adapter:           DefaultConfig(),
		Logger:            slog.Default(),
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

// WithTimeouts sets the header read and response write timeouts. The write
// timeout must exceed the longest stream budget.
func WithTimeouts(readHeader, write time.Duration) ServerOption {
	return func(s *Server) {
		s.config.ReadHeaderTimeout = readHeader
		s.config.WriteTimeout = write
	}
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithAdapterConfig sets the HTTP adapter configuration.
func WithAdapterConfig(cfg Config) ServerOption {
	return func(s *Server) { s.config.Adapter = cfg }
}

// WithHTTPMiddleware appends HTTP-level middleware.
func WithHTTPMiddleware(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(s *Server) { s.config.HTTPMiddleware = append(s.config.HTTPMiddleware, mw...) }
}

// WithOnShutdown registers a hook that runs during graceful shutdown.
func WithOnShutdown(fn func(context.Context) error) ServerOption {
	return func(s *Server) { s.config.OnShutdown = append(s.config.OnShutdown, fn) }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.config.Logger = l; s.logger = l }
}

// NewServer creates a transport server dispatching to h. Recovery, request
// ID and logging middleware are applied automatically; request metrics are
// recorded for every route.
func NewServer(h transport.Handler, opts ...ServerOption) *Server {
	s := &Server{
		config: DefaultServerConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	defaultMW := []transport.Middleware{
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(s.logger),
	}

	s.adapter = NewAdapter(h, s.config.Adapter, defaultMW...)

	var handler http.Handler = s.adapter.Handler()
	for i := len(s.config.HTTPMiddleware) - 1; i >= 0; i-- {
		handler = s.config.HTTPMiddleware[i](handler)
	}

	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           observability.MetricsMiddleware(handler),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		WriteTimeout:      s.config.WriteTimeout,
	}

	return s
}

// Adapter returns the server's HTTP adapter.
func (s *Server) Adapter() *Adapter {
	return s.adapter
}

// ListenAndServe starts the server and blocks until a shutdown signal
// (SIGINT or SIGTERM) is received. It then shuts down gracefully.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends, then shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server starting", slog.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown drains the server. New streams are refused, the listener stops,
// SSE responses get until ctx ends to finish, then every remaining stream
// (including hijacked WebSocket connections) is canceled and awaited before
// the OnShutdown hooks run.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down gracefully")
	s.adapter.Drain()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	if n := s.adapter.CancelStreams(); n > 0 {
		s.logger.Info("canceled in-flight streams", slog.Int("count", n))
	}

	// Canceled streams still need a moment to deliver their terminal event,
	// even when the shutdown budget is already spent.
	waitCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
	}
	if err := s.adapter.Wait(waitCtx); err != nil {
		errs = append(errs, err)
	}

	for _, fn := range s.config.OnShutdown {
		if err := fn(waitCtx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
