// Package transport defines the handler contract and middleware chain that
// sit between caller-facing transports and the gateway engine.
//
// A transport (WebSocket, HTTP/SSE or an in-process pipe) turns one caller
// connection into a channel.Channel plus the first api.Request read from it,
// then calls a Handler. The handler answers exclusively through the channel:
// zero or more delta events followed by exactly one terminal event.
//
// # Middleware
//
// Middleware wraps a Handler with cross-cutting behavior. Built-in
// middleware provides panic recovery, request ID assignment (X-Request-ID)
// and structured logging via log/slog.
//
// # Streams
//
// InFlightRegistry maps stream IDs to cancel functions so that a stream can
// be canceled by ID and all streams can be canceled on shutdown.
package transport
