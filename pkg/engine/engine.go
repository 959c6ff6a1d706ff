package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/channel"
	"github.com/rhuss/streamgate/pkg/debug"
	"github.com/rhuss/streamgate/pkg/provider"
	"github.com/rhuss/streamgate/pkg/queue"
	"github.com/rhuss/streamgate/pkg/relay"
	"github.com/rhuss/streamgate/pkg/transport"
)

// Engine serves generate and batchGenerate requests. It implements
// transport.Handler.
type Engine struct {
	resolver provider.Resolver
	relay    *relay.Relay
	limit    *queue.LimitCache
	queue    *queue.Queue
	settings func() Config
}

// Ensure Engine implements transport.Handler at compile time.
var _ transport.Handler = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithRelay sets the stream relay. The default is relay.New().
func WithRelay(r *relay.Relay) Option {
	return func(e *Engine) { e.relay = r }
}

// WithLimit sets the concurrency limit source of the batch queue.
func WithLimit(l *queue.LimitCache) Option {
	return func(e *Engine) { e.limit = l }
}

// WithSettings sets the function that supplies per-request settings.
func WithSettings(fn func() Config) Option {
	return func(e *Engine) { e.settings = fn }
}

// New creates an Engine. The resolver must not be nil.
func New(resolver provider.Resolver, opts ...Option) (*Engine, error) {
	if resolver == nil {
		return nil, fmt.Errorf("engine: resolver must not be nil")
	}
	e := &Engine{resolver: resolver}
	for _, opt := range opts {
		opt(e)
	}
	if e.relay == nil {
		e.relay = relay.New()
	}
	if e.settings == nil {
		e.settings = DefaultConfig
	}
	e.queue = queue.New(e.limit, e.runTask)
	return e, nil
}

// Serve validates req, builds the upstream request and streams the result
// to ch. It blocks until the stream has terminated.
func (e *Engine) Serve(ctx context.Context, req api.Request, ch channel.Channel) error {
	cfg := e.settings()

	if apiErr := api.ValidateRequest(&req, cfg.Validation); apiErr != nil {
		return reject(ch, apiErr)
	}

	pc, err := e.resolver.Resolve(ctx, req.Payload.Provider)
	if err != nil {
		return reject(ch, err)
	}

	built, err := provider.Build(req.Payload, pc, cfg.Build)
	if err != nil {
		return reject(ch, err)
	}

	job := relay.Job{
		Request:  built,
		Format:   pc.Format,
		Timeout:  cfg.timeoutFor(req),
		Provider: pc.ID,
	}

	debug.Log(debug.Transport, "dispatching request",
		"stream_id", transport.StreamIDFromContext(ctx),
		"action", string(req.Action),
		"provider", pc.ID,
		"format", pc.Format.String())

	if req.IsBatch() {
		return e.enqueue(ctx, job, ch)
	}
	return outcomeError(e.relay.Run(ctx, job, ch))
}

// enqueue admits job through the batch queue and waits for it to finish.
func (e *Engine) enqueue(ctx context.Context, job relay.Job, ch channel.Channel) error {
	t := queue.NewTask(job, ch)
	t.Context = ctx

	if err := e.queue.Enqueue(t); err != nil {
		_ = ch.Send(api.ErrorEvent("Gateway is shutting down"))
		return api.NewServerError(err.Error())
	}
	<-t.Done()

	if t.Canceled() {
		// Fails with channel.ErrClosed when the caller already left.
		_ = ch.Send(api.ErrorEvent("Request canceled"))
		return api.NewAbortError("task canceled before start")
	}
	return outcomeError(t.Outcome)
}

func (e *Engine) runTask(ctx context.Context, t *queue.Task) {
	t.Outcome = e.relay.Run(ctx, t.Job, t.Channel)
}

// Invalidate drops the cached concurrency limit so the next admission
// reads the current configuration.
func (e *Engine) Invalidate() {
	e.queue.Invalidate()
}

// Stats reports queue counters and upstream breaker states.
type Stats struct {
	Queue    queue.Stats       `json:"queue"`
	Breakers map[string]string `json:"breakers,omitempty"`
}

// Stats returns a point-in-time view of the engine.
func (e *Engine) Stats() Stats {
	return Stats{
		Queue:    e.queue.Stats(),
		Breakers: e.relay.BreakerStates(),
	}
}

// Shutdown stops admitting batch requests, cancels running ones and waits
// for them to finish or for ctx to end.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.queue.Close()

	done := make(chan struct{})
	go func() {
		e.queue.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reject reports err to the caller as the stream's only event.
func reject(ch channel.Channel, err error) error {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		apiErr = api.NewServerError(err.Error())
	}
	_ = ch.Send(api.ErrorEvent(apiErr.Message))
	return apiErr
}

// outcomeError converts a relay outcome into the error Serve returns.
// The caller has already been told; the error is for logs and metrics.
func outcomeError(o relay.Outcome) error {
	switch o {
	case relay.OutcomeDone:
		return nil
	case relay.OutcomeTimeout:
		return api.NewTimeoutError("stream timed out")
	case relay.OutcomeDisconnected, relay.OutcomeCanceled:
		return api.NewAbortError("stream " + o.String())
	default:
		return api.NewConnectionError("stream ended with an error event")
	}
}
