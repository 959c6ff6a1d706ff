package channel

import (
	"sync"

	"github.com/rhuss/streamgate/pkg/api"
)

// pipeEnd is one side of an in-process pipe.
type pipeEnd[S, R any] struct {
	*Mailbox[R]
	p    *pipe
	peer *Mailbox[S]
}

type pipe struct {
	once sync.Once
	ends []interface{ Shutdown() }
	mu   sync.RWMutex
	shut bool
}

func (e *pipeEnd[S, R]) Send(msg S) error {
	e.p.mu.RLock()
	defer e.p.mu.RUnlock()
	if e.p.shut {
		return ErrClosed
	}
	e.peer.Push(msg)
	return nil
}

// Close disconnects both ends.
func (e *pipeEnd[S, R]) Close() error {
	e.p.once.Do(func() {
		e.p.mu.Lock()
		e.p.shut = true
		e.p.mu.Unlock()
		for _, end := range e.p.ends {
			end.Shutdown()
		}
	})
	return nil
}

// NewPortPair returns two connected in-process ports. Closing either end
// disconnects both; messages sent before Close are still delivered.
func NewPortPair[A, B any]() (Port[A, B], Port[B, A]) {
	ma := NewMailbox[B]()
	mb := NewMailbox[A]()
	p := &pipe{ends: []interface{ Shutdown() }{ma, mb}}
	a := &pipeEnd[A, B]{Mailbox: ma, p: p, peer: mb}
	b := &pipeEnd[B, A]{Mailbox: mb, p: p, peer: ma}
	return a, b
}

// NewPipe returns a connected gateway Channel and ClientPort for embedding
// the gateway in-process.
func NewPipe() (Channel, ClientPort) {
	return NewPortPair[api.Event, api.Request]()
}
