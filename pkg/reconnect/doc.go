// Package reconnect is the caller-side counterpart of the gateway: it
// opens a channel, sends one request, and resolves exactly once with the
// accumulated text or an error, retrying connection failures with
// exponential backoff.
package reconnect
