package transport

import (
	"errors"
	"sync"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/channel"
)

// ErrTerminated is returned by a guarded channel when an event is sent after
// the terminal event.
var ErrTerminated = errors.New("transport: stream already terminated")

type guarded struct {
	channel.Channel

	mu         sync.Mutex
	terminated bool
}

// Guard wraps ch so that at most one terminal event reaches the caller.
// Guarding an already guarded channel returns it unchanged.
func Guard(ch channel.Channel) channel.Channel {
	if g, ok := ch.(*guarded); ok {
		return g
	}
	return &guarded{Channel: ch}
}

func (g *guarded) Send(ev api.Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.terminated {
		return ErrTerminated
	}
	if err := g.Channel.Send(ev); err != nil {
		return err
	}
	if ev.IsTerminal() {
		g.terminated = true
	}
	return nil
}

// Terminated reports whether a terminal event went out on a guarded
// channel. It is false for channels not created by Guard.
func Terminated(ch channel.Channel) bool {
	g, ok := ch.(*guarded)
	if !ok {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.terminated
}
