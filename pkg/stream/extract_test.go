package stream

import (
	"testing"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/provider"
)

func TestExtract_OpenAI(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Result
	}{
		{"content", `{"choices":[{"delta":{"content":"Hel"}}]}`, Result{Delta: "Hel"}},
		{"role only", `{"choices":[{"delta":{"role":"assistant"}}]}`, Result{}},
		{"empty content", `{"choices":[{"delta":{"content":""}}]}`, Result{}},
		{"null finish", `{"choices":[{"delta":{"content":"x"},"finish_reason":null}]}`, Result{Delta: "x"}},
		{"finish", `{"choices":[{"delta":{},"finish_reason":"stop"}]}`, Result{Done: true}},
		{"delta and finish", `{"choices":[{"delta":{"content":"end"},"finish_reason":"length"}]}`, Result{Delta: "end", Done: true}},
		{"empty finish", `{"choices":[{"delta":{},"finish_reason":""}]}`, Result{}},
		{"no choices", `{"usage":{"total_tokens":3}}`, Result{}},
		{"sentinel", `[DONE]`, Result{Done: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.payload, provider.OpenAIStyle)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExtract_Anthropic(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Result
	}{
		{"block delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`, Result{Delta: "Hi"}},
		{"block start with text", `{"type":"content_block_start","content_block":{"type":"text","text":"A"}}`, Result{Delta: "A"}},
		{"block start empty", `{"type":"content_block_start","content_block":{"type":"text","text":""}}`, Result{}},
		{"message delta stop", `{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`, Result{Done: true}},
		{"message delta null stop", `{"type":"message_delta","delta":{"stop_reason":null}}`, Result{}},
		{"message stop", `{"type":"message_stop"}`, Result{Done: true}},
		{"ping", `{"type":"ping"}`, Result{}},
		{"message start", `{"type":"message_start","message":{"content":[{"text":"ignored"}]}}`, Result{}},
		{"fallback text", `{"type":"custom","text":"fb"}`, Result{Delta: "fb"}},
		{"fallback content", `{"type":"custom","content":[{"text":"c0"}]}`, Result{Delta: "c0"}},
		{"unknown", `{"type":"custom"}`, Result{}},
		{"sentinel", `[DONE]`, Result{Done: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.payload, provider.AnthropicStyle)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExtract_SentinelIsCaseSensitive(t *testing.T) {
	_, err := Extract("[done]", provider.OpenAIStyle)
	if !api.IsType(err, api.ErrorTypeParse) {
		t.Errorf("expected parse_error for lowercase sentinel, got %v", err)
	}
}

func TestExtract_MalformedJSON(t *testing.T) {
	for _, p := range []string{`{"choices":`, `not json`, ``} {
		_, err := Extract(p, provider.OpenAIStyle)
		if !api.IsType(err, api.ErrorTypeParse) {
			t.Errorf("Extract(%q): expected parse_error, got %v", p, err)
		}
	}
}

func TestExtract_Pure(t *testing.T) {
	p := `{"choices":[{"delta":{"content":"same"}}]}`
	a, _ := Extract(p, provider.OpenAIStyle)
	b, _ := Extract(p, provider.OpenAIStyle)
	if a != b {
		t.Errorf("results differ: %+v vs %+v", a, b)
	}
}

// Framing plus extraction over a recorded OpenAI stream.
func TestFramesAndExtract_OpenAIScenario(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: [DONE]\n\n"

	var text string
	done := false
	for _, frame := range Frames([]byte(body)) {
		r, err := Extract(Payload(frame), provider.OpenAIStyle)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		text += r.Delta
		if r.Done {
			done = true
		}
	}
	if text != "Hello" || !done {
		t.Errorf("text = %q, done = %v", text, done)
	}
}
