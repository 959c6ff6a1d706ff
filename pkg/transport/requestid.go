package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/channel"
)

// RequestID returns middleware that makes sure every request carries an ID.
// An ID already in the context (set by the HTTP adapter from the
// X-Request-ID header) is kept; otherwise a new UUID is generated.
func RequestID() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req api.Request, ch channel.Channel) error {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, uuid.NewString())
			}
			return next.Serve(ctx, req, ch)
		})
	}
}
