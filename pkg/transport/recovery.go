package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/channel"
)

// Recovery returns middleware that catches panics in the handler, reports
// them to the caller as an error event and returns a server error. The
// channel is guarded so the error event is only sent when no terminal event
// went out before the panic.
func Recovery() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req api.Request, ch channel.Channel) (retErr error) {
			g := Guard(ch)
			defer func() {
				if r := recover(); r != nil {
					slog.Error("handler panic recovered",
						"request_id", RequestIDFromContext(ctx),
						"panic", r,
					)
					_ = g.Send(api.ErrorEvent("Internal server error"))
					retErr = api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.Serve(ctx, req, g)
		})
	}
}
