// Command mock-backend runs a deterministic streaming upstream for local
// development and end-to-end testing of the gateway. It speaks both the
// OpenAI chat completions and the Anthropic messages streaming formats.
//
// The reply echoes the last user message word by word. Markers in the
// message change the behavior:
//
//	[error]     respond with HTTP 500 and a JSON error body
//	[malformed] emit one frame that is not valid JSON before the reply
//	[slow]      pause between frames
//	[cut]       end the stream without a terminal frame
//
// Configuration:
//
//	MOCK_PORT  - Listen port (default: 9090)
//	MOCK_DELAY - Pause between frames for [slow] (default: 200ms)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}
	delay := 200 * time.Millisecond
	if v := os.Getenv("MOCK_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Error("invalid MOCK_DELAY", "value", v, "error", err)
			os.Exit(1)
		}
		delay = d
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           newMux(delay),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func newMux(delay time.Duration) *http.ServeMux {
	b := &backend{delay: delay}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", b.handleOpenAI)
	mux.HandleFunc("POST /v1/messages", b.handleAnthropic)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// --- Request types ---

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string    `json:"model"`
	System   string    `json:"system,omitempty"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
}

func (r *completionRequest) lastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Content
		}
	}
	return ""
}

// script is the deterministic plan for one reply.
type script struct {
	tokens    []string
	fail      bool
	malformed bool
	slow      bool
	cut       bool
}

func plan(req *completionRequest) script {
	msg := req.lastUserMessage()
	s := script{
		fail:      strings.Contains(msg, "[error]"),
		malformed: strings.Contains(msg, "[malformed]"),
		slow:      strings.Contains(msg, "[slow]"),
		cut:       strings.Contains(msg, "[cut]"),
	}

	var words []string
	for _, w := range strings.Fields(msg) {
		if strings.HasPrefix(w, "[") && strings.HasSuffix(w, "]") {
			continue
		}
		words = append(words, w)
	}
	if len(words) == 0 {
		words = []string{"Hello!"}
	}
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		s.tokens = append(s.tokens, w)
	}
	return s
}

// --- Handlers ---

type backend struct {
	delay time.Duration
}

func (b *backend) decode(w http.ResponseWriter, r *http.Request, keyHeader string) (*completionRequest, bool) {
	if r.Header.Get(keyHeader) == "" {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return nil, false
	}
	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return nil, false
	}
	if !req.Stream {
		writeError(w, http.StatusBadRequest, "only streaming requests are supported")
		return nil, false
	}
	if req.Model == "" {
		req.Model = "mock-model"
	}
	return &req, true
}

func (b *backend) handleOpenAI(w http.ResponseWriter, r *http.Request) {
	req, ok := b.decode(w, r, "Authorization")
	if !ok {
		return
	}
	b.stream(w, r, plan(req), openAIFrames(req.Model))
}

func (b *backend) handleAnthropic(w http.ResponseWriter, r *http.Request) {
	req, ok := b.decode(w, r, "x-api-key")
	if !ok {
		return
	}
	b.stream(w, r, plan(req), anthropicFrames(req.Model))
}

// frameSet renders the frames of one wire format.
type frameSet struct {
	open  []string
	delta func(text string) string
	close []string
}

func (b *backend) stream(w http.ResponseWriter, r *http.Request, s script, fs frameSet) {
	if s.fail {
		writeError(w, http.StatusInternalServerError, "mock upstream failure")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(data string) bool {
		if s.slow {
			select {
			case <-time.After(b.delay):
			case <-r.Context().Done():
				return false
			}
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
		return true
	}

	for _, f := range fs.open {
		if !send(f) {
			return
		}
	}
	if s.malformed && !send(`{"choices":[{"delta":`) {
		return
	}
	for _, tok := range s.tokens {
		if !send(fs.delta(tok)) {
			return
		}
	}
	if s.cut {
		return
	}
	for _, f := range fs.close {
		if !send(f) {
			return
		}
	}
}

func openAIFrames(model string) frameSet {
	chunk := func(delta map[string]any, finish any) string {
		return mustJSON(map[string]any{
			"id":      "chatcmpl-mock-stream",
			"object":  "chat.completion.chunk",
			"model":   model,
			"choices": []any{map[string]any{"index": 0, "delta": delta, "finish_reason": finish}},
		})
	}
	return frameSet{
		open:  []string{chunk(map[string]any{"role": "assistant"}, nil)},
		delta: func(text string) string { return chunk(map[string]any{"content": text}, nil) },
		close: []string{chunk(map[string]any{}, "stop"), "[DONE]"},
	}
}

func anthropicFrames(model string) frameSet {
	return frameSet{
		open: []string{
			mustJSON(map[string]any{
				"type":    "message_start",
				"message": map[string]any{"id": "msg_mock", "role": "assistant", "model": model},
			}),
			mustJSON(map[string]any{
				"type":          "content_block_start",
				"index":         0,
				"content_block": map[string]any{"type": "text", "text": ""},
			}),
		},
		delta: func(text string) string {
			return mustJSON(map[string]any{
				"type":  "content_block_delta",
				"index": 0,
				"delta": map[string]any{"type": "text_delta", "text": text},
			})
		},
		close: []string{
			mustJSON(map[string]any{"type": "content_block_stop", "index": 0}),
			mustJSON(map[string]any{"type": "message_delta", "delta": map[string]any{"stop_reason": "end_turn"}}),
			mustJSON(map[string]any{"type": "message_stop"}),
		},
	}
}

// --- Helpers ---

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": msg, "type": "mock_error"},
	})
}
