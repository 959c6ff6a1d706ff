package transport

import (
	"context"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/channel"
)

// Handler serves one inbound request. It reports progress and the result
// only through ch; the returned error is for logging and metrics.
type Handler interface {
	Serve(ctx context.Context, req api.Request, ch channel.Channel) error
}

// HandlerFunc is an adapter that allows using an ordinary function as a
// Handler.
type HandlerFunc func(ctx context.Context, req api.Request, ch channel.Channel) error

// Serve calls f(ctx, req, ch).
func (f HandlerFunc) Serve(ctx context.Context, req api.Request, ch channel.Channel) error {
	return f(ctx, req, ch)
}
