package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/channel"
	"github.com/rhuss/streamgate/pkg/provider"
)

const waitTimeout = 2 * time.Second

type eventLog struct {
	mu     sync.Mutex
	events []api.Event
}

func (l *eventLog) add(ev api.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []api.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]api.Event(nil), l.events...)
}

// sseUpstream serves body as an event stream, flushing after every chunk.
func sseUpstream(t *testing.T, chunks ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, c := range chunks {
			fmt.Fprint(w, c)
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func jobFor(url string, format provider.WireFormat) Job {
	return Job{
		Request: &provider.Request{
			Endpoint: url,
			Headers:  map[string]string{"Content-Type": "application/json"},
			Body:     []byte(`{"stream":true}`),
		},
		Format:   format,
		Timeout:  DefaultTimeout,
		Provider: "test",
	}
}

func noBreaker() Option {
	return WithBreaker(BreakerConfig{Enabled: false})
}

// runRelay runs job over a fresh pipe and returns the outcome and every
// event the caller received.
func runRelay(t *testing.T, r *Relay, job Job) (Outcome, []api.Event) {
	t.Helper()
	server, client := channel.NewPipe()
	var got eventLog
	client.OnMessage(got.add)

	out := r.Run(context.Background(), job, server)

	_ = server.Close()
	select {
	case <-client.Done():
	case <-time.After(waitTimeout):
		t.Fatal("client did not observe close")
	}
	return out, got.snapshot()
}

func assertEvents(t *testing.T, got []api.Event, want ...api.Event) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d events %+v, want %d %+v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func countTerminal(events []api.Event) int {
	n := 0
	for _, ev := range events {
		if ev.IsTerminal() {
			n++
		}
	}
	return n
}

func TestRun_OpenAIScenario(t *testing.T) {
	srv := sseUpstream(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n",
		"data: {\"choices\":[{\"finish_reason\":\"stop\"}]}\n\n",
		"data: [DONE]\n\n",
	)

	out, events := runRelay(t, New(noBreaker()), jobFor(srv.URL, provider.OpenAIStyle))

	if out != OutcomeDone {
		t.Errorf("outcome = %v, want done", out)
	}
	assertEvents(t, events, api.DeltaEvent("Hi"), api.DoneEvent())
}

func TestRun_AnthropicScenario(t *testing.T) {
	srv := sseUpstream(t,
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"Bon\"}}\n\n",
		"data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"jour\"}}\n\n",
		"data: {\"type\":\"message_stop\"}\n\n",
	)

	out, events := runRelay(t, New(noBreaker()), jobFor(srv.URL, provider.AnthropicStyle))

	if out != OutcomeDone {
		t.Errorf("outcome = %v, want done", out)
	}
	assertEvents(t, events, api.DeltaEvent("Bon"), api.DeltaEvent("jour"), api.DoneEvent())
}

func TestRun_FramesSplitAcrossChunks(t *testing.T) {
	srv := sseUpstream(t,
		"data: {\"choices\":[{\"del",
		"ta\":{\"content\":\"Hel\"}}]}\r\ndata: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}",
		"\r\n\r\ndata: [DO",
		"NE]\n",
	)

	_, events := runRelay(t, New(noBreaker(), WithReadSize(8)), jobFor(srv.URL, provider.OpenAIStyle))

	assertEvents(t, events, api.DeltaEvent("Hel"), api.DeltaEvent("lo"), api.DoneEvent())
}

func TestRun_DeltaBeforeDoneInSameFrame(t *testing.T) {
	srv := sseUpstream(t, "data: {\"choices\":[{\"delta\":{\"content\":\"end\"},\"finish_reason\":\"stop\"}]}\n")

	_, events := runRelay(t, New(noBreaker()), jobFor(srv.URL, provider.OpenAIStyle))

	assertEvents(t, events, api.DeltaEvent("end"), api.DoneEvent())
}

func TestRun_ImplicitDoneOnEOF(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []api.Event
	}{
		{"empty body", nil, []api.Event{api.DoneEvent()}},
		{"no done signal", []string{"data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n"}, []api.Event{api.DeltaEvent("a"), api.DoneEvent()}},
		{"unterminated last line", []string{"data: {\"choices\":[{\"delta\":{\"content\":\"tail\"}}]}"}, []api.Event{api.DeltaEvent("tail"), api.DoneEvent()}},
		{"only comments", []string{": keep-alive\n\n"}, []api.Event{api.DoneEvent()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := sseUpstream(t, tt.chunks...)
			out, events := runRelay(t, New(noBreaker()), jobFor(srv.URL, provider.OpenAIStyle))
			if out != OutcomeDone {
				t.Errorf("outcome = %v, want done", out)
			}
			assertEvents(t, events, tt.want...)
		})
	}
}

func TestRun_SkipsMalformedFrames(t *testing.T) {
	srv := sseUpstream(t,
		"data: {not json\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n",
		"data: [DONE]\n",
	)

	_, events := runRelay(t, New(noBreaker()), jobFor(srv.URL, provider.OpenAIStyle))

	assertEvents(t, events, api.DeltaEvent("ok"), api.DoneEvent())
}

func TestRun_NonOKStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"error.message", 401, `{"error":{"message":"Invalid API key","type":"auth"}}`, "Invalid API key"},
		{"message", 400, `{"message":"bad model"}`, "bad model"},
		{"raw text", 502, "Bad Gateway", "Bad Gateway"},
		{"empty body", 503, "", "HTTP 503"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			out, events := runRelay(t, New(noBreaker()), jobFor(srv.URL, provider.OpenAIStyle))

			if out != OutcomeError {
				t.Errorf("outcome = %v, want error", out)
			}
			assertEvents(t, events, api.ErrorEvent(tt.want))
		})
	}
}

func TestRun_ForwardsHeadersAndBody(t *testing.T) {
	type seen struct{ key, body string }
	got := make(chan seen, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- seen{key: r.Header.Get("x-api-key"), body: string(body)}
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	job := jobFor(srv.URL, provider.AnthropicStyle)
	job.Request.Headers["x-api-key"] = "secret"
	runRelay(t, New(noBreaker()), job)

	s := <-got
	if s.key != "secret" {
		t.Errorf("x-api-key = %q", s.key)
	}
	if s.body != `{"stream":true}` {
		t.Errorf("body = %q", s.body)
	}
}

func TestRun_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"slow\"}}]}\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	job := jobFor(srv.URL, provider.OpenAIStyle)
	job.Timeout = 100 * time.Millisecond

	out, events := runRelay(t, New(noBreaker()), job)

	if out != OutcomeTimeout {
		t.Errorf("outcome = %v, want timeout", out)
	}
	if len(events) != 2 || events[0] != api.DeltaEvent("slow") || events[1].Type != api.EventError {
		t.Fatalf("events = %+v", events)
	}
	if !strings.Contains(events[1].Error, "timed out") {
		t.Errorf("error = %q", events[1].Error)
	}
}

func TestRun_TimeoutBeforeHeaders(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	job := jobFor(srv.URL, provider.OpenAIStyle)
	job.Timeout = 50 * time.Millisecond

	out, events := runRelay(t, New(), job)

	if out != OutcomeTimeout {
		t.Errorf("outcome = %v, want timeout", out)
	}
	if countTerminal(events) != 1 || events[0].Type != api.EventError {
		t.Errorf("events = %+v", events)
	}
}

func TestRun_DisconnectAbortsWithoutEvent(t *testing.T) {
	aborted := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(aborted)
	}))
	defer srv.Close()

	server, client := channel.NewPipe()
	var got eventLog
	client.OnMessage(func(ev api.Event) {
		got.add(ev)
		if ev.Type == api.EventDelta {
			_ = client.Close()
		}
	})

	out := New(noBreaker()).Run(context.Background(), jobFor(srv.URL, provider.OpenAIStyle), server)

	if out != OutcomeDisconnected {
		t.Errorf("outcome = %v, want disconnected", out)
	}
	select {
	case <-aborted:
	case <-time.After(waitTimeout):
		t.Fatal("upstream request was not aborted")
	}
	<-client.Done()
	for _, ev := range got.snapshot() {
		if ev.IsTerminal() {
			t.Errorf("unexpected terminal event after disconnect: %+v", ev)
		}
	}
}

func TestRun_AlreadyDisconnected(t *testing.T) {
	srv := sseUpstream(t, "data: [DONE]\n")
	server, client := channel.NewPipe()
	_ = client.Close()
	<-server.Done()

	out := New(noBreaker()).Run(context.Background(), jobFor(srv.URL, provider.OpenAIStyle), server)
	if out != OutcomeDisconnected {
		t.Errorf("outcome = %v, want disconnected", out)
	}
}

func TestRun_ParentCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		cancel()
		<-r.Context().Done()
	}))
	defer srv.Close()

	server, client := channel.NewPipe()
	var got eventLog
	client.OnMessage(got.add)

	out := New(noBreaker()).Run(ctx, jobFor(srv.URL, provider.OpenAIStyle), server)
	_ = server.Close()
	<-client.Done()

	if out != OutcomeCanceled {
		t.Errorf("outcome = %v, want canceled", out)
	}
	if events := got.snapshot(); countTerminal(events) != 1 {
		t.Errorf("events = %+v", events)
	}
}

func TestRun_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out, events := runRelay(t, New(noBreaker()), jobFor(url, provider.OpenAIStyle))

	if out != OutcomeError {
		t.Errorf("outcome = %v, want error", out)
	}
	if len(events) != 1 || !strings.Contains(events[0].Error, "upstream connection error") {
		t.Errorf("events = %+v", events)
	}
}

func TestRun_NilRequest(t *testing.T) {
	out, events := runRelay(t, New(), Job{Provider: "test"})
	if out != OutcomeError || len(events) != 1 || events[0].Type != api.EventError {
		t.Errorf("outcome = %v, events = %+v", out, events)
	}
}

// Every synthetic upstream yields exactly one terminal event.
func TestRun_SingleTerminalEvent(t *testing.T) {
	bodies := []string{
		"",
		"data: [DONE]\ndata: [DONE]\n",
		"data: {\"type\":\"message_stop\"}\ndata: {\"choices\":[{\"finish_reason\":\"stop\"}]}\n",
		"garbage\n\ndata: nope\n",
		"data: {\"choices\":[{\"finish_reason\":\"stop\"}]}\ndata: {\"choices\":[{\"delta\":{\"content\":\"late\"}}]}\n",
	}
	for i, body := range bodies {
		for _, format := range []provider.WireFormat{provider.OpenAIStyle, provider.AnthropicStyle} {
			t.Run(fmt.Sprintf("%d/%s", i, format), func(t *testing.T) {
				srv := sseUpstream(t, body)
				_, events := runRelay(t, New(noBreaker()), jobFor(srv.URL, format))
				if n := countTerminal(events); n != 1 {
					t.Fatalf("terminal events = %d: %+v", n, events)
				}
				if !events[len(events)-1].IsTerminal() {
					t.Errorf("terminal event is not last: %+v", events)
				}
			})
		}
	}
}

func TestRun_BreakerOpensAfterUpstreamFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := New(WithBreaker(BreakerConfig{
		Enabled:          true,
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
		HalfOpenRequests: 1,
	}))
	job := jobFor(srv.URL, provider.OpenAIStyle)

	runRelay(t, r, job)
	runRelay(t, r, job)
	out, events := runRelay(t, r, job)

	if hits.Load() != 2 {
		t.Errorf("upstream hits = %d, want 2 (third run must fail fast)", hits.Load())
	}
	if out != OutcomeError || len(events) != 1 || !strings.Contains(events[0].Error, "temporarily unavailable") {
		t.Errorf("outcome = %v, events = %+v", out, events)
	}
	if st := r.BreakerStates()[srv.URL]; st != "open" {
		t.Errorf("breaker state = %q, want open", st)
	}
}

func TestRun_ClientErrorsDoNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	r := New(WithBreaker(BreakerConfig{Enabled: true, FailureThreshold: 1, OpenTimeout: time.Minute, HalfOpenRequests: 1}))
	for i := 0; i < 3; i++ {
		runRelay(t, r, jobFor(srv.URL, provider.OpenAIStyle))
	}
	if hits.Load() != 3 {
		t.Errorf("upstream hits = %d, want 3", hits.Load())
	}
}

func TestOutcomeString(t *testing.T) {
	for o, want := range map[Outcome]string{
		OutcomeDone:         "done",
		OutcomeError:        "error",
		OutcomeTimeout:      "timeout",
		OutcomeDisconnected: "disconnected",
		OutcomeCanceled:     "canceled",
	} {
		if got := o.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(o), got, want)
		}
	}
}
