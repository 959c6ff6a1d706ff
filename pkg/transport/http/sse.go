package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/channel"
)

// writerState tracks the state of an SSE channel.
type writerState int

const (
	writerIdle      writerState = iota // No event written yet
	writerStreaming                    // Headers sent, at least one event written
	writerCompleted                    // Terminal event sent or handler returned
)

// sseChannel is a gateway Channel over an HTTP response. Events are written
// as server-sent events:
//
//	data: {"type":"delta","data":"..."}\n
//	\n
//
// The caller disconnecting (request context done) disconnects the channel.
// Inbound messages never arrive; the request comes from the POST body.
type sseChannel struct {
	*channel.Mailbox[api.Request]

	w        http.ResponseWriter
	rc       *http.ResponseController
	streamID string

	mu    sync.Mutex
	state writerState
}

var _ channel.Channel = (*sseChannel)(nil)

func newSSEChannel(w http.ResponseWriter, streamID string) *sseChannel {
	return &sseChannel{
		Mailbox:  channel.NewMailbox[api.Request](),
		w:        w,
		rc:       http.NewResponseController(w),
		streamID: streamID,
	}
}

// Send writes ev as one SSE event and flushes it. A write or flush failure
// means the caller is gone and disconnects the channel.
func (s *sseChannel) Send(ev api.Event) error {
	if s.Closing() {
		return channel.ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return channel.ErrClosed
	}

	if s.state == writerIdle {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		h.Set("X-Stream-ID", s.streamID)
		s.w.WriteHeader(http.StatusOK)
		s.state = writerStreaming
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		s.Shutdown()
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		s.Shutdown()
		return fmt.Errorf("failed to flush: %w", err)
	}

	if ev.IsTerminal() {
		s.state = writerCompleted
	}
	return nil
}

// Close disconnects the channel. The response itself ends when the HTTP
// handler returns.
func (s *sseChannel) Close() error {
	s.Shutdown()
	return nil
}

// finish stops all further writes. It must be called before the HTTP
// handler returns, since the ResponseWriter is invalid afterwards.
func (s *sseChannel) finish() {
	s.mu.Lock()
	s.state = writerCompleted
	s.mu.Unlock()
	s.Shutdown()
}

// started reports whether any event has been written.
func (s *sseChannel) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != writerIdle
}
