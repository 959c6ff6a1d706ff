package reconnect

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/channel"
)

func fastConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Jitter:      0,
		SettleDelay: time.Millisecond,
	}
}

// result records every callback invocation.
type result struct {
	mu     sync.Mutex
	deltas []string
	done   []string
	errs   []string
}

func (r *result) callbacks() Callbacks {
	return Callbacks{
		OnDelta: func(s string) { r.mu.Lock(); r.deltas = append(r.deltas, s); r.mu.Unlock() },
		OnDone:  func(s string) { r.mu.Lock(); r.done = append(r.done, s); r.mu.Unlock() },
		OnError: func(s string) { r.mu.Lock(); r.errs = append(r.errs, s); r.mu.Unlock() },
	}
}

func (r *result) check(t *testing.T, wantDone []string, wantErrs []string) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.done)+len(r.errs) != 1 {
		t.Fatalf("resolved %d times (done=%q errs=%q), want exactly once", len(r.done)+len(r.errs), r.done, r.errs)
	}
	if !equal(r.done, wantDone) {
		t.Errorf("done = %q, want %q", r.done, wantDone)
	}
	if !equal(r.errs, wantErrs) {
		t.Errorf("errs = %q, want %q", r.errs, wantErrs)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// pipeDialer returns a dialer that connects to an in-process server
// running serve for every dial.
func pipeDialer(serve func(ch channel.Channel)) (Dialer, *atomic.Int32) {
	var dials atomic.Int32
	return DialerFunc(func(ctx context.Context) (channel.ClientPort, error) {
		dials.Add(1)
		server, client := channel.NewPipe()
		serve(server)
		return client, nil
	}), &dials
}

func respond(events ...api.Event) func(ch channel.Channel) {
	return func(ch channel.Channel) {
		ch.OnMessage(func(req api.Request) {
			for _, ev := range events {
				_ = ch.Send(ev)
			}
			_ = ch.Close()
		})
	}
}

var request = api.Request{Action: api.ActionGenerate, Payload: api.Payload{Selection: "hi"}}

func runWithTimeout(t *testing.T, c *Controller, ctx context.Context, cb Callbacks) {
	t.Helper()
	finished := make(chan struct{})
	go func() {
		c.Run(ctx, request, cb)
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRun_StreamsAndCompletes(t *testing.T) {
	d, dials := pipeDialer(respond(api.DeltaEvent("Hel"), api.DeltaEvent("lo"), api.DoneEvent()))
	var r result

	runWithTimeout(t, New(d, fastConfig()), context.Background(), r.callbacks())

	r.check(t, []string{"Hello"}, nil)
	if !equal(r.deltas, []string{"Hel", "lo"}) {
		t.Errorf("deltas = %q", r.deltas)
	}
	if dials.Load() != 1 {
		t.Errorf("dials = %d, want 1", dials.Load())
	}
}

func TestRun_ServerError(t *testing.T) {
	d, _ := pipeDialer(respond(api.ErrorEvent("Invalid API key")))
	var r result

	runWithTimeout(t, New(d, fastConfig()), context.Background(), r.callbacks())

	r.check(t, nil, []string{"Invalid API key"})
}

func TestRun_DisconnectAfterDeliveryCompletesWithPartialText(t *testing.T) {
	d, dials := pipeDialer(respond(api.DeltaEvent("partial")))
	var r result

	runWithTimeout(t, New(d, fastConfig()), context.Background(), r.callbacks())

	r.check(t, []string{"partial"}, nil)
	if dials.Load() != 1 {
		t.Errorf("dials = %d, want 1 (no retry after delivery)", dials.Load())
	}
}

func TestRun_DisconnectBeforeDeliveryIsRetried(t *testing.T) {
	var dials atomic.Int32
	d := DialerFunc(func(ctx context.Context) (channel.ClientPort, error) {
		n := dials.Add(1)
		server, client := channel.NewPipe()
		if n < 3 {
			_ = server.Close()
		} else {
			respond(api.DeltaEvent("ok"), api.DoneEvent())(server)
		}
		return client, nil
	})
	var r result

	runWithTimeout(t, New(d, fastConfig()), context.Background(), r.callbacks())

	r.check(t, []string{"ok"}, nil)
	if dials.Load() != 3 {
		t.Errorf("dials = %d, want 3", dials.Load())
	}
}

func TestRun_DisconnectDuringSettleIsRetried(t *testing.T) {
	var dials atomic.Int32
	d := DialerFunc(func(ctx context.Context) (channel.ClientPort, error) {
		server, client := channel.NewPipe()
		if dials.Add(1) == 1 {
			time.AfterFunc(5*time.Millisecond, func() { _ = server.Close() })
		} else {
			respond(api.DeltaEvent("ok"), api.DoneEvent())(server)
		}
		return client, nil
	})
	cfg := fastConfig()
	cfg.SettleDelay = 200 * time.Millisecond
	var r result

	runWithTimeout(t, New(d, cfg), context.Background(), r.callbacks())

	r.check(t, []string{"ok"}, nil)
	if dials.Load() != 2 {
		t.Errorf("dials = %d, want 2", dials.Load())
	}
}

func TestRun_NeverConnectedFails(t *testing.T) {
	d, dials := pipeDialer(func(ch channel.Channel) { _ = ch.Close() })
	var r result

	runWithTimeout(t, New(d, fastConfig()), context.Background(), r.callbacks())

	r.check(t, nil, []string{MsgConnectionFailed})
	if dials.Load() != 3 {
		t.Errorf("dials = %d, want MaxAttempts=3", dials.Load())
	}
}

func TestRun_DialErrorsExhaustAttempts(t *testing.T) {
	var dials atomic.Int32
	d := DialerFunc(func(ctx context.Context) (channel.ClientPort, error) {
		dials.Add(1)
		return nil, errors.New("connection refused")
	})
	var r result

	cfg := fastConfig()
	cfg.MaxAttempts = 4
	runWithTimeout(t, New(d, cfg), context.Background(), r.callbacks())

	r.check(t, nil, []string{MsgConnectionFailed})
	if dials.Load() != 4 {
		t.Errorf("dials = %d, want 4", dials.Load())
	}
}

func TestRun_DialRecovers(t *testing.T) {
	var dials atomic.Int32
	inner, _ := pipeDialer(respond(api.DoneEvent()))
	d := DialerFunc(func(ctx context.Context) (channel.ClientPort, error) {
		if dials.Add(1) == 1 {
			return nil, errors.New("connection refused")
		}
		return inner.Dial(ctx)
	})
	var r result

	runWithTimeout(t, New(d, fastConfig()), context.Background(), r.callbacks())

	r.check(t, []string{""}, nil)
}

func TestRun_ContextCanceledWhileWaiting(t *testing.T) {
	d, _ := pipeDialer(func(ch channel.Channel) {
		ch.OnMessage(func(api.Request) {})
	})
	var r result

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	runWithTimeout(t, New(d, fastConfig()), ctx, r.callbacks())

	r.check(t, nil, []string{MsgCanceled})
}

func TestRun_NilCallbacks(t *testing.T) {
	d, _ := pipeDialer(respond(api.DeltaEvent("x"), api.DoneEvent()))
	runWithTimeout(t, New(d, fastConfig()), context.Background(), Callbacks{})
}

func TestNew_Defaults(t *testing.T) {
	c := New(nil, Config{})
	def := DefaultConfig()
	if c.cfg.MaxAttempts != def.MaxAttempts || c.cfg.BaseDelay != def.BaseDelay {
		t.Errorf("cfg = %+v", c.cfg)
	}
}
