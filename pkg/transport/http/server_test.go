package http

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	gohttp "net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/auth"
	"github.com/rhuss/streamgate/pkg/auth/apikey"
	"github.com/rhuss/streamgate/pkg/channel"
	"github.com/rhuss/streamgate/pkg/engine"
	"github.com/rhuss/streamgate/pkg/provider"
	"github.com/rhuss/streamgate/pkg/queue"
	"github.com/rhuss/streamgate/pkg/reconnect"
	"github.com/rhuss/streamgate/pkg/relay"
)

// upstream is a fake OpenAI-style streaming endpoint. With hold set it
// flushes headers and then blocks until the request ends.
func upstream(t *testing.T, hold bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		if hold {
			w.(gohttp.Flusher).Flush()
			<-r.Context().Done()
			return
		}
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Bon\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"jour\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newGateway(t *testing.T, endpoint string, opts ...engine.Option) *engine.Engine {
	t.Helper()
	resolver := provider.ResolverFunc(func(_ context.Context, _ string) (provider.ProviderConfig, error) {
		return provider.ProviderConfig{
			ID:       "test",
			Name:     "Test",
			Endpoint: endpoint,
			Model:    "m",
			APIKey:   "sk-test",
			Format:   provider.OpenAIStyle,
			Auth:     provider.BearerAuth,
		}, nil
	})
	opts = append([]engine.Option{
		engine.WithRelay(relay.New(relay.WithBreaker(relay.BreakerConfig{Enabled: false}))),
	}, opts...)
	eng, err := engine.New(resolver, opts...)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng
}

// startServer serves s on a loopback listener until the test ends.
func startServer(t *testing.T, s *Server) (baseURL string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve(ctx, ln)
	}()
	stop = func() {
		cancel()
		<-done
	}
	t.Cleanup(stop)
	return "http://" + ln.Addr().String(), stop
}

func TestServerSSEEndToEnd(t *testing.T) {
	eng := newGateway(t, upstream(t, false).URL)
	base, _ := startServer(t, NewServer(eng, WithOnShutdown(eng.Shutdown)))

	resp := post(t, base+"/v1/generate", "application/json", `{"selection":"Hello","targetLanguage":"fr"}`)
	events := readSSE(t, resp.Body)

	want := []api.Event{api.DeltaEvent("Bon"), api.DeltaEvent("jour"), api.DoneEvent()}
	if len(events) != len(want) {
		t.Fatalf("events = %+v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestServerQueuedBatchOutlivesWriteTimeout(t *testing.T) {
	slow := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		time.Sleep(250 * time.Millisecond)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(slow.Close)

	eng := newGateway(t, slow.URL, engine.WithLimit(queue.StaticLimit(1)))
	base, _ := startServer(t, NewServer(eng,
		WithTimeouts(5*time.Second, 400*time.Millisecond),
		WithOnShutdown(eng.Shutdown),
	))

	const n = 3
	type result struct {
		events []api.Event
		err    error
	}
	results := make(chan result, n)
	for range n {
		go func() {
			resp, err := gohttp.Post(base+"/v1/batch", "application/json",
				strings.NewReader(`{"selection":"Hello","targetLanguage":"fr"}`))
			if err != nil {
				results <- result{err: err}
				return
			}
			defer resp.Body.Close()
			events, err := scanEvents(resp.Body)
			results <- result{events: events, err: err}
		}()
	}

	for i := range n {
		r := <-results
		if r.err != nil {
			t.Errorf("batch %d: %v", i, r.err)
			continue
		}
		if len(r.events) != 2 || r.events[1] != api.DoneEvent() {
			t.Errorf("batch %d events = %+v, want delta then done", i, r.events)
		}
	}
}

// scanEvents reads SSE data lines until the body ends.
func scanEvents(body io.Reader) ([]api.Event, error) {
	var events []api.Event
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		line, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var ev api.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, sc.Err()
}

func TestServerWebSocketWithReconnect(t *testing.T) {
	eng := newGateway(t, upstream(t, false).URL)
	base, _ := startServer(t, NewServer(eng, WithOnShutdown(eng.Shutdown)))

	ctrl := reconnect.New(
		reconnect.WebSocketDialer("ws"+strings.TrimPrefix(base, "http")+"/v1/stream", nil),
		reconnect.Config{SettleDelay: time.Millisecond},
	)

	var deltas []string
	var final, failure string
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	ctrl.Run(ctx, api.Request{Action: api.ActionBatchGenerate, Payload: api.Payload{Selection: "Hello"}},
		reconnect.Callbacks{
			OnDelta: func(text string) { deltas = append(deltas, text) },
			OnDone:  func(text string) { final = text },
			OnError: func(msg string) { failure = msg },
		})

	if failure != "" {
		t.Fatalf("OnError(%q)", failure)
	}
	if final != "Bonjour" {
		t.Errorf("final text = %q, want Bonjour", final)
	}
	if len(deltas) != 2 {
		t.Errorf("deltas = %v", deltas)
	}
}

func TestServerShutdownCancelsStreams(t *testing.T) {
	eng := newGateway(t, upstream(t, true).URL)
	var hookCalled atomic.Bool
	s := NewServer(eng,
		WithShutdownTimeout(time.Second),
		WithOnShutdown(func(ctx context.Context) error {
			hookCalled.Store(true)
			return eng.Shutdown(ctx)
		}))
	base, stop := startServer(t, s)

	client, err := channel.Dial(context.Background(), "ws"+strings.TrimPrefix(base, "http")+"/v1/stream", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	var got clientLog
	client.OnMessage(got.add)
	if err := client.Send(api.Request{Action: api.ActionGenerate, Payload: api.Payload{Selection: "x"}}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(waitTimeout)
	for s.Adapter().streams.Len() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("stream never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stop()

	select {
	case <-client.Done():
	case <-time.After(waitTimeout):
		t.Fatal("client stream not closed by shutdown")
	}
	events := got.snapshot()
	if len(events) != 1 || events[0] != api.ErrorEvent("Request canceled") {
		t.Errorf("events = %+v", events)
	}
	if !hookCalled.Load() {
		t.Error("OnShutdown hook not called")
	}
}

func TestServerHTTPMiddlewareAuth(t *testing.T) {
	eng := newGateway(t, upstream(t, false).URL)
	chain := &auth.Chain{
		Authenticators: []auth.Authenticator{
			apikey.New([]apikey.Entry{{Key: "gw-key", Identity: auth.Identity{Subject: "alice"}}}),
		},
		DefaultDecision: auth.No,
	}
	s := NewServer(eng,
		WithHTTPMiddleware(auth.Middleware(chain, nil, auth.DefaultBypassEndpoints)),
		WithOnShutdown(eng.Shutdown))
	base, _ := startServer(t, s)

	do := func(key string) *gohttp.Response {
		req, _ := gohttp.NewRequest(gohttp.MethodPost, base+"/v1/generate", strings.NewReader(`{"selection":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		if key != "" {
			req.Header.Set(apikey.HeaderName, key)
		}
		resp, err := gohttp.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	if resp := do(""); resp.StatusCode != gohttp.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", resp.StatusCode)
	}
	if resp := do("wrong"); resp.StatusCode != gohttp.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", resp.StatusCode)
	}
	resp := do("gw-key")
	if resp.StatusCode != gohttp.StatusOK {
		t.Fatalf("valid key: status = %d, want 200", resp.StatusCode)
	}
	if events := readSSE(t, resp.Body); len(events) == 0 || !events[len(events)-1].IsTerminal() {
		t.Errorf("events = %+v", events)
	}

	health, err := gohttp.Get(base + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	health.Body.Close()
	if health.StatusCode != gohttp.StatusOK {
		t.Errorf("healthz behind auth = %d, want bypass", health.StatusCode)
	}
}
