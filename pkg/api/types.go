package api

// Action selects how the gateway serves an inbound request.
type Action string

const (
	// ActionGenerate streams a single completion immediately.
	ActionGenerate Action = "generate"

	// ActionBatchGenerate admits the completion through the bounded task
	// queue and uses the longer batch timeout.
	ActionBatchGenerate Action = "batchGenerate"
)

// Request is the inbound message a caller sends over a channel.
type Request struct {
	Action  Action  `json:"action"`
	Payload Payload `json:"payload"`
}

// Payload is the logical prompt for one completion.
type Payload struct {
	// Selection is the text the caller wants processed (required).
	Selection string `json:"selection"`

	// Context is optional surrounding text. It is truncated before it is
	// sent upstream.
	Context string `json:"context,omitempty"`

	// TargetLanguage is the language the completion should be written in.
	TargetLanguage string `json:"targetLanguage,omitempty"`

	// UILanguage is the caller's interface language, used to localize
	// configuration errors.
	UILanguage string `json:"uiLanguage,omitempty"`

	// Provider selects the upstream provider by ID. Empty means the
	// configured default.
	Provider string `json:"provider,omitempty"`

	// Instruction replaces the default system prompt when set.
	Instruction string `json:"instruction,omitempty"`
}

// IsBatch reports whether the request should be scheduled through the queue.
func (r *Request) IsBatch() bool {
	return r.Action == ActionBatchGenerate
}
