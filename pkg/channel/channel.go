package channel

import (
	"errors"
	"sync"

	"github.com/rhuss/streamgate/pkg/api"
)

// ErrClosed is returned by Send after the port has closed.
var ErrClosed = errors.New("channel: closed")

// Port is one end of a bidirectional message channel. It sends values of
// type S and receives values of type R.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Port[S, R any] interface {
	// Send delivers msg to the peer. It fails with ErrClosed once the port
	// is disconnected.
	Send(msg S) error

	// OnMessage registers the inbound handler. Messages are delivered
	// sequentially from a dedicated goroutine; the handler must not block
	// for long.
	OnMessage(fn func(R))

	// OnDisconnect registers fn to run once when the port disconnects.
	// If the port is already disconnected, fn runs immediately. The
	// returned function detaches fn.
	OnDisconnect(fn func()) (remove func())

	// Done is closed after the port disconnected and its listeners ran.
	Done() <-chan struct{}

	// Close disconnects the port. It is idempotent.
	Close() error
}

// Channel is the gateway side of a caller connection.
type Channel = Port[api.Event, api.Request]

// ClientPort is the caller side of a gateway connection.
type ClientPort = Port[api.Request, api.Event]

type listener struct {
	id uint64
	fn func()
}

// Mailbox implements the receiving half of a Port: ordered delivery to a
// late-registered handler and one-shot disconnect notification. Transports
// embed it and add Send and Close.
type Mailbox[R any] struct {
	mu        sync.Mutex
	cond      *sync.Cond
	queue     []R
	handler   func(R)
	closing   bool
	closed    bool
	listeners []listener
	nextID    uint64
	done      chan struct{}
}

// NewMailbox starts a Mailbox and its delivery goroutine.
func NewMailbox[R any]() *Mailbox[R] {
	m := &Mailbox[R]{done: make(chan struct{})}
	m.cond = sync.NewCond(&m.mu)
	go m.pump()
	return m
}

// Push queues an inbound message. Messages pushed after Shutdown are dropped.
func (m *Mailbox[R]) Push(msg R) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return
	}
	m.queue = append(m.queue, msg)
	m.cond.Signal()
}

// OnMessage registers the inbound handler, replacing any previous one.
func (m *Mailbox[R]) OnMessage(fn func(R)) {
	m.mu.Lock()
	m.handler = fn
	m.mu.Unlock()
	m.cond.Signal()
}

// OnDisconnect registers a disconnect listener.
func (m *Mailbox[R]) OnDisconnect(fn func()) func() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		fn()
		return func() {}
	}
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, listener{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, l := range m.listeners {
			if l.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// Done is closed once the mailbox has disconnected.
func (m *Mailbox[R]) Done() <-chan struct{} {
	return m.done
}

// Closing reports whether Shutdown has been called.
func (m *Mailbox[R]) Closing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closing
}

// Shutdown marks the mailbox disconnected. Messages already queued are
// still delivered if a handler is registered; then listeners run in
// registration order and Done closes.
func (m *Mailbox[R]) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return
	}
	m.closing = true
	m.cond.Signal()
}

func (m *Mailbox[R]) pump() {
	for {
		m.mu.Lock()
		for !m.closing && (m.handler == nil || len(m.queue) == 0) {
			m.cond.Wait()
		}
		if m.handler != nil && len(m.queue) > 0 {
			msg := m.queue[0]
			var zero R
			m.queue[0] = zero
			m.queue = m.queue[1:]
			h := m.handler
			m.mu.Unlock()
			h(msg)
			continue
		}

		// Closing with nothing deliverable left.
		m.queue = nil
		m.closed = true
		ls := m.listeners
		m.listeners = nil
		m.mu.Unlock()

		for _, l := range ls {
			l.fn()
		}
		close(m.done)
		return
	}
}
