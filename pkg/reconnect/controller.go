package reconnect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/channel"
	"github.com/rhuss/streamgate/pkg/debug"
)

// Messages passed to OnError by the controller itself.
const (
	MsgConnectionFailed = "Connection failed"
	MsgCanceled         = "Request canceled"
)

// Dialer opens a caller-side channel to the gateway.
type Dialer interface {
	Dial(ctx context.Context) (channel.ClientPort, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (channel.ClientPort, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (channel.ClientPort, error) {
	return f(ctx)
}

// WebSocketDialer dials the gateway's WebSocket endpoint at url.
func WebSocketDialer(url string, header http.Header) Dialer {
	return DialerFunc(func(ctx context.Context) (channel.ClientPort, error) {
		return channel.Dial(ctx, url, header)
	})
}

// Callbacks receive the outcome of a Run. Exactly one of OnDone and
// OnError is called, once. They run on the channel's delivery goroutine
// or on the goroutine calling Run.
type Callbacks struct {
	OnDelta func(text string)
	OnDone  func(text string)
	OnError func(message string)
}

// Config tunes retries.
type Config struct {
	// MaxAttempts is the total number of connection attempts.
	MaxAttempts int

	// BaseDelay is scaled by 2^min(attempt,5) between attempts.
	BaseDelay time.Duration

	// Jitter is the upper bound of the random delay added to each backoff.
	Jitter time.Duration

	// SettleDelay is waited between registering handlers and sending the
	// request.
	SettleDelay time.Duration
}

// DefaultConfig returns the retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 4,
		BaseDelay:   250 * time.Millisecond,
		Jitter:      100 * time.Millisecond,
		SettleDelay: 50 * time.Millisecond,
	}
}

// Controller runs requests over dialed channels with retries.
type Controller struct {
	dialer Dialer
	cfg    Config
}

// New creates a Controller. Zero MaxAttempts and BaseDelay take their
// defaults.
func New(d Dialer, cfg Config) *Controller {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	return &Controller{dialer: d, cfg: cfg}
}

// resolver enforces exactly-once resolution.
type resolver struct {
	mu       sync.Mutex
	resolved bool
	cb       Callbacks
	done     chan struct{}
}

func (r *resolver) isResolved() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved
}

func (r *resolver) claim() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return false
	}
	r.resolved = true
	return true
}

func (r *resolver) resolveDone(text string) {
	if !r.claim() {
		return
	}
	if r.cb.OnDone != nil {
		r.cb.OnDone(text)
	}
	close(r.done)
}

func (r *resolver) resolveError(msg string) {
	if !r.claim() {
		return
	}
	if r.cb.OnError != nil {
		r.cb.OnError(msg)
	}
	close(r.done)
}

// Run sends req and blocks until one of cb.OnDone or cb.OnError has run.
//
// Failures to dial or send are retried with backoff up to MaxAttempts;
// exhaustion resolves with "Connection failed". A request counts as
// delivered only once Send succeeded: a channel that drops after the dial
// but before the send (for example during the settle delay) is retried
// like a failed dial, not completed. Once the request was delivered, a
// disconnect resolves with the text accumulated so far.
func (c *Controller) Run(ctx context.Context, req api.Request, cb Callbacks) {
	res := &resolver{cb: cb, done: make(chan struct{})}

	attempt := 0
	op := func() error {
		attempt++
		err := c.attempt(ctx, req, res)
		if err != nil {
			debug.Log(debug.Reconnect, "attempt failed", "attempt", attempt, "error", err.Error())
		}
		return err
	}

	var bo backoff.BackOff = newExpBackOff(c.cfg.BaseDelay, c.cfg.Jitter)
	bo = backoff.WithMaxRetries(bo, uint64(c.cfg.MaxAttempts-1))
	bo = backoff.WithContext(bo, ctx)

	err := backoff.RetryNotify(op, bo, func(err error, d time.Duration) {
		debug.Log(debug.Reconnect, "retrying", "attempt", attempt, "delay", d.String())
	})
	if err == nil {
		return
	}

	if ctx.Err() != nil {
		res.resolveError(MsgCanceled)
		return
	}
	res.resolveError(MsgConnectionFailed)
}

// attempt performs one connection attempt. It returns nil once res is
// resolved and an error when the attempt failed before the request was
// delivered.
func (c *Controller) attempt(ctx context.Context, req api.Request, res *resolver) error {
	port, err := c.dialer.Dial(ctx)
	if err != nil {
		return api.NewConnectionError(fmt.Sprintf("dial: %s", err.Error()))
	}

	var (
		mu        sync.Mutex
		delivered bool
		text      strings.Builder
	)
	failed := make(chan struct{})
	var failOnce sync.Once

	port.OnMessage(func(ev api.Event) {
		switch ev.Type {
		case api.EventDelta:
			mu.Lock()
			text.WriteString(ev.Data)
			mu.Unlock()
			if res.cb.OnDelta != nil && !res.isResolved() {
				res.cb.OnDelta(ev.Data)
			}
		case api.EventDone:
			mu.Lock()
			s := text.String()
			mu.Unlock()
			res.resolveDone(s)
		case api.EventError:
			res.resolveError(ev.Error)
		}
	})
	remove := port.OnDisconnect(func() {
		mu.Lock()
		ok := delivered
		s := text.String()
		mu.Unlock()

		if ok {
			res.resolveDone(s)
			return
		}
		failOnce.Do(func() { close(failed) })
	})

	teardown := func() {
		remove()
		_ = port.Close()
	}

	if c.cfg.SettleDelay > 0 {
		select {
		case <-time.After(c.cfg.SettleDelay):
		case <-ctx.Done():
			teardown()
			return backoff.Permanent(ctx.Err())
		case <-failed:
			teardown()
			return api.NewConnectionError("disconnected before the request was sent")
		}
	}

	// Holding mu across Send orders it against the disconnect listener:
	// a disconnect observed after a successful send counts as delivered.
	mu.Lock()
	err = port.Send(req)
	if err == nil {
		select {
		case <-failed:
			err = errors.New("disconnected while sending the request")
		default:
			delivered = true
		}
	}
	mu.Unlock()
	if err != nil {
		teardown()
		return api.NewConnectionError(fmt.Sprintf("send: %s", err.Error()))
	}

	select {
	case <-res.done:
	case <-ctx.Done():
		res.resolveError(MsgCanceled)
	}
	teardown()
	return nil
}
