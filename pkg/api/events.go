package api

// EventType identifies the kind of an outbound stream event.
type EventType string

const (
	EventDelta EventType = "delta"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is a single normalized stream event sent from the gateway to a
// caller. Zero or more delta events precede exactly one terminal event
// (done or error).
type Event struct {
	Type  EventType `json:"type"`
	Data  string    `json:"data,omitempty"`
	Error string    `json:"error,omitempty"`
}

// DeltaEvent returns an event carrying an incremental piece of text.
func DeltaEvent(text string) Event {
	return Event{Type: EventDelta, Data: text}
}

// DoneEvent returns the successful terminal event.
func DoneEvent() Event {
	return Event{Type: EventDone}
}

// ErrorEvent returns the failure terminal event with a human-readable message.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Error: message}
}

// IsTerminal reports whether the event ends a stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
