package api

import "fmt"

// StreamState is a lifecycle state of one relayed stream.
type StreamState string

const (
	StreamIdle       StreamState = "idle"
	StreamRequesting StreamState = "requesting"
	StreamStreaming  StreamState = "streaming"
	StreamTerminated StreamState = "terminated"
)

// ValidateStreamTransition checks whether a stream state transition is valid.
// Streaming may repeat (one transition per received chunk). Terminated has
// no outgoing transitions.
func ValidateStreamTransition(from, to StreamState) *APIError {
	valid := map[StreamState][]StreamState{
		StreamIdle:       {StreamRequesting, StreamTerminated},
		StreamRequesting: {StreamStreaming, StreamTerminated},
		StreamStreaming:  {StreamStreaming, StreamTerminated},
		StreamTerminated: {},
	}

	allowed, exists := valid[from]
	if !exists {
		return NewInvalidRequestError("state",
			fmt.Sprintf("invalid transition from %s to %s", from, to))
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return NewInvalidRequestError("state",
		fmt.Sprintf("invalid transition from %s to %s", from, to))
}
