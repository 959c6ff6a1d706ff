// Package relay owns the lifecycle of one upstream streaming request and
// forwards its normalized events to a caller channel.
//
// Every run ends with exactly one terminal event (done or error) unless the
// caller disconnected first, in which case nothing more is sent. Timeouts
// and disconnects abort the upstream request; the resulting abort errors
// are never reported.
package relay
