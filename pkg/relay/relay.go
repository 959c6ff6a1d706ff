package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/channel"
	"github.com/rhuss/streamgate/pkg/debug"
	"github.com/rhuss/streamgate/pkg/observability"
	"github.com/rhuss/streamgate/pkg/provider"
	"github.com/rhuss/streamgate/pkg/stream"
)

// Default per-request budgets.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultBatchTimeout = 45 * time.Second
)

const defaultReadSize = 4096

// errCanceled marks upstream failures caused by our own cancellation so the
// circuit breaker ignores them.
var errCanceled = errors.New("relay: request canceled")

// Job is one upstream streaming request.
type Job struct {
	Request *provider.Request
	Format  provider.WireFormat

	// Timeout bounds the whole run. Zero disables the relay's own timer.
	Timeout time.Duration

	// Provider labels logs and metrics.
	Provider string
}

// Outcome is how a run terminated.
type Outcome int

const (
	// OutcomeDone means a done event was sent (explicit or implicit).
	OutcomeDone Outcome = iota

	// OutcomeError means an error event was sent.
	OutcomeError

	// OutcomeTimeout means the budget elapsed and an error event was sent.
	OutcomeTimeout

	// OutcomeDisconnected means the caller went away; nothing more was sent.
	OutcomeDisconnected

	// OutcomeCanceled means the parent context ended (shutdown).
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeError:
		return "error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeDisconnected:
		return "disconnected"
	case OutcomeCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Relay issues upstream streaming requests and forwards their events.
// A Relay is safe for concurrent use; each Run owns its own request.
type Relay struct {
	client   *http.Client
	breakers *breakerSet
	readSize int
}

// Option configures a Relay.
type Option func(*Relay)

// WithHTTPClient sets the HTTP client used for upstream requests. The
// client's Timeout should be zero; runs are bounded by Job.Timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Relay) { r.client = c }
}

// WithBreaker configures the per-upstream circuit breakers.
func WithBreaker(cfg BreakerConfig) Option {
	return func(r *Relay) { r.breakers = newBreakerSet(cfg) }
}

// WithReadSize sets the body read buffer size.
func WithReadSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.readSize = n
		}
	}
}

// New creates a Relay.
func New(opts ...Option) *Relay {
	r := &Relay{
		client:   &http.Client{},
		breakers: newBreakerSet(DefaultBreakerConfig()),
		readSize: defaultReadSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BreakerStates reports the circuit breaker state of every upstream seen.
func (r *Relay) BreakerStates() map[string]string {
	out := make(map[string]string)
	for name, st := range r.breakers.states() {
		out[name] = st.String()
	}
	return out
}

// session tracks what has been sent to the caller during one run. Only the
// Run goroutine touches it.
type session struct {
	ch       channel.Channel
	provider string
	timeout  time.Duration
	state    api.StreamState
	terminal bool
	gone     bool
	deltas   int
}

// advance moves the run to the next lifecycle state. Transitions are
// validated only for the debug log; the run never blocks on them.
func (s *session) advance(to api.StreamState) {
	if err := api.ValidateStreamTransition(s.state, to); err != nil {
		slog.Warn("unexpected relay state transition", "provider", s.provider, "error", err.Message)
	}
	if s.state != to {
		debug.Trace(debug.Relay, "state", "provider", s.provider, "from", string(s.state), "to", string(to))
	}
	s.state = to
}

// send delivers ev unless a terminal event was already sent or the channel
// is gone. It reports whether ev was delivered.
func (s *session) send(ev api.Event) bool {
	if s.terminal || s.gone {
		return false
	}
	if err := s.ch.Send(ev); err != nil {
		debug.Log(debug.Relay, "channel send failed", "provider", s.provider, "error", err.Error())
		s.gone = true
		return false
	}
	if ev.IsTerminal() {
		s.terminal = true
	} else {
		s.deltas++
	}
	return true
}

func (s *session) live() bool {
	if s.gone {
		return false
	}
	select {
	case <-s.ch.Done():
		return false
	default:
		return true
	}
}

// fail maps err to the run's terminal event. Failures caused by our own
// cancellation are replaced by the cancellation's cause.
func (s *session) fail(ctx context.Context, err error) Outcome {
	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		switch {
		case errors.Is(cause, errDisconnected):
			return OutcomeDisconnected
		case errors.Is(cause, errTimeout):
			s.send(api.ErrorEvent(fmt.Sprintf("Request timed out after %s", s.timeout)))
			return OutcomeTimeout
		default:
			s.send(api.ErrorEvent("Request canceled"))
			return OutcomeCanceled
		}
	}

	msg := err.Error()
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		msg = apiErr.Message
	}
	if !s.send(api.ErrorEvent(msg)) && s.gone {
		return OutcomeDisconnected
	}
	return OutcomeError
}

// Run issues job and relays its stream to ch. It blocks until the run
// terminates and returns how it ended.
//
// On every exit path the timer is stopped, the disconnect listener is
// detached, the body is closed, and a done event is sent if no terminal
// event went out and ch is still live.
func (r *Relay) Run(ctx context.Context, job Job, ch channel.Channel) (outcome Outcome) {
	start := time.Now()
	s := &session{ch: ch, provider: job.Provider, timeout: job.Timeout, state: api.StreamIdle}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if job.Timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeoutCause(ctx, job.Timeout, errTimeout)
		defer stop()
	}

	remove := ch.OnDisconnect(func() { cancel(errDisconnected) })
	defer func() {
		remove()
		if !s.terminal && outcome != OutcomeDisconnected && s.live() {
			s.send(api.DoneEvent())
		}
		if s.gone && !s.terminal {
			outcome = OutcomeDisconnected
		}
		s.advance(api.StreamTerminated)

		observability.RelayStreamsTotal.WithLabelValues(job.Provider, outcome.String()).Inc()
		observability.RelayStreamDuration.WithLabelValues(job.Provider).Observe(time.Since(start).Seconds())
		observability.RelayDeltasTotal.WithLabelValues(job.Provider).Add(float64(s.deltas))
		debug.Log(debug.Relay, "relay finished",
			"provider", job.Provider, "outcome", outcome.String(),
			"deltas", s.deltas, "duration", time.Since(start).String())
	}()

	if job.Request == nil {
		s.send(api.ErrorEvent("no upstream request"))
		return OutcomeError
	}

	s.advance(api.StreamRequesting)
	resp, err := r.open(ctx, job)
	if err != nil {
		return s.fail(ctx, err)
	}
	defer resp.Body.Close()
	s.advance(api.StreamStreaming)

	return r.relay(ctx, job, resp.Body, s)
}

// open sends the request through the endpoint's circuit breaker and
// returns a 2xx response.
func (r *Relay) open(ctx context.Context, job Job) (*http.Response, error) {
	debug.Log(debug.Relay, "upstream request",
		"provider", job.Provider, "endpoint", job.Request.Endpoint, "format", job.Format.String())
	debug.Raw(debug.Relay, string(job.Request.Body))

	do := func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.Request.Endpoint, bytes.NewReader(job.Request.Body))
		if err != nil {
			return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
		}
		for k, v := range job.Request.Headers {
			req.Header.Set(k, v)
		}

		resp, err := r.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", errCanceled, api.NewAbortError(err.Error()))
			}
			return nil, mapNetworkError(err)
		}

		observability.UpstreamResponsesTotal.WithLabelValues(job.Provider, observability.StatusClass(resp.StatusCode)).Inc()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			defer resp.Body.Close()
			apiErr := mapHTTPError(resp)
			slog.Warn("upstream returned error status",
				"provider", job.Provider, "status", resp.StatusCode, "message", debug.Truncate(apiErr.Message, 200))
			return nil, apiErr
		}
		return resp, nil
	}

	var (
		out any
		err error
	)
	if cb := r.breakers.get(job.Request.Endpoint); cb != nil {
		out, err = cb.Execute(do)
	} else {
		out, err = do()
	}
	if err != nil {
		if isBreakerRejection(err) {
			return nil, api.NewConnectionError(fmt.Sprintf("upstream %s is temporarily unavailable", job.Provider))
		}
		return nil, err
	}
	return out.(*http.Response), nil
}

// relay reads body until a done signal, EOF, or cancellation.
func (r *Relay) relay(ctx context.Context, job Job, body io.Reader, s *session) Outcome {
	framer := stream.NewFramer()
	buf := make([]byte, r.readSize)

	for {
		if ctx.Err() != nil {
			return s.fail(ctx, ctx.Err())
		}

		n, err := body.Read(buf)
		if n > 0 {
			if done := r.deliver(framer.Push(buf[:n]), job, s); done {
				return s.outcome()
			}
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			if done := r.deliver(framer.Flush(), job, s); done {
				return s.outcome()
			}
			// Upstream closed without a done signal.
			s.send(api.DoneEvent())
			return s.outcome()
		default:
			if ctx.Err() != nil {
				return s.fail(ctx, err)
			}
			return s.fail(ctx, api.NewConnectionError(fmt.Sprintf("upstream stream interrupted: %s", err.Error())))
		}
	}
}

// deliver extracts and forwards frames. It reports whether the run is
// over, either because a done signal was sent or the channel is gone.
func (r *Relay) deliver(frames []string, job Job, s *session) bool {
	for _, frame := range frames {
		payload := stream.Payload(frame)
		debug.Trace(debug.Stream, "frame", "provider", job.Provider, "payload", payload)

		res, err := stream.Extract(payload, job.Format)
		if err != nil {
			observability.RelayMalformedFramesTotal.WithLabelValues(job.Provider).Inc()
			slog.Warn("skipping malformed stream frame",
				"provider", job.Provider, "data", debug.Truncate(payload, 200))
			continue
		}

		if res.Delta != "" {
			s.send(api.DeltaEvent(res.Delta))
		}
		if res.Done {
			s.send(api.DoneEvent())
			return true
		}
		if s.gone {
			return true
		}
	}
	return false
}

func (s *session) outcome() Outcome {
	if s.gone && !s.terminal {
		return OutcomeDisconnected
	}
	return OutcomeDone
}
