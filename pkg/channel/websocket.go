package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/debug"
)

const defaultWriteTimeout = 10 * time.Second

// WebSocket is a Port over a gorilla/websocket connection. Each message is
// one JSON document in a text frame. A read error or close frame
// disconnects the port.
type WebSocket[S, R any] struct {
	*Mailbox[R]

	conn         *websocket.Conn
	writeMu      sync.Mutex
	closeOnce    sync.Once
	writeTimeout time.Duration
}

// NewWebSocket wraps an established connection and starts reading from it.
// The port owns conn from here on.
func NewWebSocket[S, R any](conn *websocket.Conn) *WebSocket[S, R] {
	ws := &WebSocket[S, R]{
		Mailbox:      NewMailbox[R](),
		conn:         conn,
		writeTimeout: defaultWriteTimeout,
	}
	go ws.readLoop()
	return ws
}

func (w *WebSocket[S, R]) readLoop() {
	defer w.Close()

	for {
		var msg R
		err := w.conn.ReadJSON(&msg)
		if err == nil {
			w.Push(msg)
			continue
		}

		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
			debug.Log(debug.Transport, "skipping malformed websocket message", "error", err.Error())
			continue
		}
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			debug.Log(debug.Transport, "websocket closed unexpectedly", "error", err.Error())
		}
		return
	}
}

// Send writes msg as a JSON text frame.
func (w *WebSocket[S, R]) Send(msg S) error {
	if w.Closing() {
		return ErrClosed
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	if err := w.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Close sends a normal close frame and closes the connection.
func (w *WebSocket[S, R]) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.writeMu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = w.conn.Close()
		w.writeMu.Unlock()
		w.Shutdown()
	})
	return err
}

// Dial connects to a gateway WebSocket endpoint and returns the caller side
// of the connection.
func Dial(ctx context.Context, url string, header http.Header) (ClientPort, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	return NewWebSocket[api.Request, api.Event](conn), nil
}
