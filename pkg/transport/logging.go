package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/channel"
)

// Logging returns middleware that emits one structured log entry per
// request with the request and stream IDs, action, provider and duration.
// Aborts caused by the caller going away are logged at debug level.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req api.Request, ch channel.Channel) error {
			start := time.Now()

			err := next.Serve(ctx, req, ch)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("stream_id", StreamIDFromContext(ctx)),
				slog.String("action", string(req.Action)),
				slog.String("provider", req.Payload.Provider),
				slog.Duration("duration", time.Since(start)),
			}

			switch {
			case err == nil:
				logger.LogAttrs(ctx, slog.LevelInfo, "request completed", attrs...)
			case api.IsAbort(err):
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelDebug, "request aborted", attrs...)
			default:
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "request failed", attrs...)
			}

			return err
		})
	}
}
