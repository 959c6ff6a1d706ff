// Package channel defines the bidirectional message port a caller and the
// gateway talk over, plus in-process and WebSocket implementations.
//
// A Port delivers inbound messages to a single handler in arrival order and
// notifies disconnect listeners exactly once. Messages that arrive before a
// handler is registered are held, not dropped.
package channel
