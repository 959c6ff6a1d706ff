package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/channel"
	"github.com/rhuss/streamgate/pkg/debug"
	"github.com/rhuss/streamgate/pkg/transport"
)

// Adapter serves the gateway over HTTP: a WebSocket stream endpoint, SSE
// endpoints for single requests, stream cancellation and ops endpoints.
type Adapter struct {
	handler  transport.Handler
	streams  *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
	upgrader websocket.Upgrader

	draining atomic.Bool
	active   sync.WaitGroup
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	// MaxBodySize caps POST bodies in bytes.
	MaxBodySize int64

	// AllowedOrigins lists origins accepted for WebSocket upgrades. Empty
	// means same-origin only; "*" accepts any origin.
	AllowedOrigins []string

	// FirstMessageTimeout bounds the wait for the request on a new
	// WebSocket connection.
	FirstMessageTimeout time.Duration

	// MetricsPath serves Prometheus metrics when non-empty.
	MetricsPath string

	// Status contributes gateway internals to /readyz. Optional.
	Status func() any
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize:         1 << 20, // 1 MB
		FirstMessageTimeout: 10 * time.Second,
		MetricsPath:         "/metrics",
	}
}

// NewAdapter creates an HTTP adapter dispatching to h. Middleware is applied
// to h in the given order.
func NewAdapter(h transport.Handler, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		h = transport.Chain(middlewares...)(h)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}
	if cfg.FirstMessageTimeout <= 0 {
		cfg.FirstMessageTimeout = DefaultConfig().FirstMessageTimeout
	}

	a := &Adapter{
		handler: h,
		streams: transport.NewInFlightRegistry(),
		mux:     http.NewServeMux(),
		config:  cfg,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      originChecker(cfg.AllowedOrigins),
		},
	}

	a.mux.HandleFunc("GET /v1/stream", a.handleStream)
	a.mux.HandleFunc("POST /v1/generate", a.handleSSE(api.ActionGenerate))
	a.mux.HandleFunc("POST /v1/batch", a.handleSSE(api.ActionBatchGenerate))
	a.mux.HandleFunc("DELETE /v1/streams/{id}", a.handleCancel)
	a.mux.HandleFunc("GET /healthz", a.handleHealth)
	a.mux.HandleFunc("GET /readyz", a.handleReady)
	if cfg.MetricsPath != "" {
		a.mux.Handle("GET "+cfg.MetricsPath, promhttp.Handler())
	}

	return a
}

// Handler returns the http.Handler for this adapter, including request ID
// propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// Drain makes the adapter refuse new streams and report not ready.
func (a *Adapter) Drain() {
	a.draining.Store(true)
}

// CancelStreams cancels every in-flight stream and returns how many were
// running.
func (a *Adapter) CancelStreams() int {
	return a.streams.CancelAll()
}

// Wait blocks until every stream handler has returned or ctx ends.
func (a *Adapter) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// originChecker accepts same-origin requests plus the configured origins.
func originChecker(allowed []string) func(*http.Request) bool {
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, origin) {
			return true
		}
		return sameOrigin(r, origin)
	}
}

func sameOrigin(r *http.Request, origin string) bool {
	for _, scheme := range []string{"http://", "https://"} {
		if origin == scheme+r.Host {
			return true
		}
	}
	return false
}

// httpRequestIDMiddleware propagates the X-Request-ID header. A client
// supplied ID is stored in the context; otherwise a new one is generated so
// the ID can be echoed before the handler chain runs.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(&requestIDResponseWriter{ResponseWriter: w}, r)
	})
}

// requestIDResponseWriter keeps Flush and Hijack reachable through the
// request ID middleware.
type requestIDResponseWriter struct {
	http.ResponseWriter
}

func (w *requestIDResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *requestIDResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("http: response writer does not support hijacking")
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// serve runs one request through the handler chain as a cancelable stream.
func (a *Adapter) serve(parent context.Context, streamID string, req api.Request, ch channel.Channel) error {
	a.active.Add(1)
	defer a.active.Done()

	ctx, cancel := context.WithCancel(transport.ContextWithStreamID(parent, streamID))
	defer cancel()

	a.streams.Register(streamID, cancel)
	defer a.streams.Remove(streamID)

	return a.handler.Serve(ctx, req, ch)
}

// handleStream handles GET /v1/stream. The client sends one api.Request as
// the first message and receives api.Event messages until the terminal
// event, after which the server closes the connection.
func (a *Adapter) handleStream(w http.ResponseWriter, r *http.Request) {
	if a.draining.Load() {
		writeDraining(w)
		return
	}

	streamID := api.NewStreamID()
	conn, err := a.upgrader.Upgrade(w, r, http.Header{"X-Stream-ID": {streamID}})
	if err != nil {
		// Upgrade already replied with an HTTP error.
		debug.Log(debug.Transport, "websocket upgrade failed", "error", err.Error())
		return
	}

	ws := channel.NewWebSocket[api.Event, api.Request](conn)
	defer ws.Close()

	first := make(chan api.Request, 1)
	ws.OnMessage(func(req api.Request) {
		select {
		case first <- req:
		default:
			debug.Log(debug.Transport, "ignoring extra request on stream", "stream_id", streamID)
		}
	})

	timer := time.NewTimer(a.config.FirstMessageTimeout)
	defer timer.Stop()

	select {
	case req := <-first:
		_ = a.serve(r.Context(), streamID, req, ws)
	case <-ws.Done():
		debug.Log(debug.Transport, "stream closed before request", "stream_id", streamID)
	case <-timer.C:
		_ = ws.Send(api.ErrorEvent("No request received"))
	}
}

// handleSSE handles POST /v1/generate and POST /v1/batch. The body is an
// api.Payload; the response is an event stream.
func (a *Adapter) handleSSE(action api.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.draining.Load() {
			writeDraining(w)
			return
		}

		if ct := r.Header.Get("Content-Type"); ct != "" {
			if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
				transport.WriteErrorResponse(w,
					api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
					http.StatusUnsupportedMediaType,
				)
				return
			}
		}

		r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

		var payload api.Payload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				transport.WriteErrorResponse(w,
					api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
					http.StatusRequestEntityTooLarge,
				)
				return
			}
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
				http.StatusBadRequest,
			)
			return
		}

		// A batch task may wait in the queue for longer than the server
		// write timeout; the stream ends on its own terminal event.
		if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
			debug.Log(debug.Transport, "clearing write deadline", "error", err.Error())
		}

		streamID := api.NewStreamID()
		ch := newSSEChannel(w, streamID)

		// The caller going away disconnects the channel.
		stop := context.AfterFunc(r.Context(), func() { _ = ch.Close() })
		defer stop()

		err := a.serve(r.Context(), streamID, api.Request{Action: action, Payload: payload}, ch)
		if err != nil && !ch.started() && r.Context().Err() == nil {
			var apiErr *api.APIError
			if !errors.As(err, &apiErr) {
				apiErr = api.NewServerError(err.Error())
			}
			transport.WriteAPIError(w, apiErr)
		}
		ch.finish()
	}
}

// handleCancel handles DELETE /v1/streams/{id}.
func (a *Adapter) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.ValidateStreamID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed stream ID"),
			http.StatusBadRequest,
		)
		return
	}

	if !a.streams.Cancel(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "stream "+id+" not found"),
			http.StatusNotFound,
		)
		return
	}

	debug.Log(debug.Transport, "stream canceled by request", "stream_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *Adapter) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// readiness is the /readyz response body.
type readiness struct {
	Status  string `json:"status"`
	Streams int    `json:"streams"`
	Gateway any    `json:"gateway,omitempty"`
}

func (a *Adapter) handleReady(w http.ResponseWriter, _ *http.Request) {
	body := readiness{Status: "ready", Streams: a.streams.Len()}
	status := http.StatusOK
	if a.draining.Load() {
		body.Status = "draining"
		status = http.StatusServiceUnavailable
	}
	if a.config.Status != nil {
		body.Gateway = a.config.Status()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDraining(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "5")
	transport.WriteErrorResponse(w,
		api.NewServerError("gateway is shutting down"),
		http.StatusServiceUnavailable,
	)
}
