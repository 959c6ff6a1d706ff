package stream

import (
	"github.com/tidwall/gjson"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/debug"
	"github.com/rhuss/streamgate/pkg/provider"
)

// Result is what one frame contributes to the stream. A frame may carry
// both a delta and a done signal; the delta is delivered first.
type Result struct {
	Delta string
	Done  bool
}

// Extract interprets one frame payload according to format. The sentinel
// "[DONE]" is recognized before any JSON parsing. Invalid JSON yields a
// parse_error; callers skip such frames.
func Extract(payload string, format provider.WireFormat) (Result, error) {
	if payload == DoneSentinel {
		return Result{Done: true}, nil
	}
	if !gjson.Valid(payload) {
		return Result{}, api.NewParseError("malformed frame: " + debug.Truncate(payload, 200))
	}

	doc := gjson.Parse(payload)
	if format == provider.AnthropicStyle {
		return extractAnthropic(doc), nil
	}
	return extractOpenAI(doc), nil
}

func extractOpenAI(doc gjson.Result) Result {
	var r Result
	if c := doc.Get("choices.0.delta.content"); c.Type == gjson.String {
		r.Delta = c.Str
	}
	if fr := doc.Get("choices.0.finish_reason"); fr.Type == gjson.String && fr.Str != "" {
		r.Done = true
	}
	return r
}

func extractAnthropic(doc gjson.Result) Result {
	switch doc.Get("type").String() {
	case "content_block_delta":
		return Result{Delta: stringAt(doc, "delta.text")}
	case "content_block_start":
		return Result{Delta: stringAt(doc, "content_block.text")}
	case "message_delta":
		sr := doc.Get("delta.stop_reason")
		return Result{Done: sr.Exists() && sr.Type != gjson.Null}
	case "message_stop":
		return Result{Done: true}
	case "message_start", "content_block_stop", "ping":
		return Result{}
	}

	if t := stringAt(doc, "text"); t != "" {
		return Result{Delta: t}
	}
	return Result{Delta: stringAt(doc, "content.0.text")}
}

func stringAt(doc gjson.Result, path string) string {
	v := doc.Get(path)
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}
