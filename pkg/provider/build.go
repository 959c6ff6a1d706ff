package provider

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rhuss/streamgate/pkg/api"
)

// Ellipsis is appended to truncated context.
const Ellipsis = "…"

const (
	defaultMaxTokens = 1024

	basePrompt = "You explain and translate text a user selected on a web page. Be concise and accurate."
)

// BuildOptions controls request building.
type BuildOptions struct {
	// MaxContextLength caps the context field in runes (0 = unlimited).
	MaxContextLength int

	// DefaultUILanguage localizes errors when the payload carries no UI language.
	DefaultUILanguage string
}

// DefaultBuildOptions returns BuildOptions with sensible defaults.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		MaxContextLength:  2000,
		DefaultUILanguage: "en",
	}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIBody is the Chat Completions streaming request.
type openAIBody struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Messages    []wireMessage `json:"messages"`
	Stream      bool          `json:"stream"`
}

// anthropicBody is the Messages API streaming request.
type anthropicBody struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	System      string        `json:"system"`
	Messages    []wireMessage `json:"messages"`
	Stream      bool          `json:"stream"`
}

// Build turns a logical payload into an upstream request for cfg. It is a
// pure function: identical input always yields an identical Request.
//
// A missing credential or endpoint fails with a config_error whose message
// is localized to the payload's UI language.
func Build(p api.Payload, cfg ProviderConfig, opts BuildOptions) (*Request, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, api.NewConfigError(localize(msgMissingKey, cfg.DisplayName(), p.UILanguage, opts.DefaultUILanguage))
	}
	if cfg.Endpoint == "" {
		return nil, api.NewConfigError(localize(msgMissingEndpoint, cfg.DisplayName(), p.UILanguage, opts.DefaultUILanguage))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	system := SystemPrompt(p)
	user := UserContent(p, opts.MaxContextLength)

	var body any
	switch cfg.Format {
	case AnthropicStyle:
		body = anthropicBody{
			Model:       cfg.Model,
			MaxTokens:   maxTokens,
			Temperature: cfg.Temperature,
			System:      system,
			Messages:    []wireMessage{{Role: "user", Content: user}},
			Stream:      true,
		}
	default:
		body = openAIBody{
			Model:       cfg.Model,
			MaxTokens:   maxTokens,
			Temperature: cfg.Temperature,
			Messages: []wireMessage{
				{Role: "system", Content: system},
				{Role: "user", Content: user},
			},
			Stream: true,
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	return &Request{
		Endpoint: cfg.Endpoint,
		Headers:  buildHeaders(cfg),
		Body:     data,
	}, nil
}

// buildHeaders composes content negotiation, authentication and the
// provider's static extra headers, in that order.
func buildHeaders(cfg ProviderConfig) map[string]string {
	h := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "text/event-stream",
	}
	name, value := cfg.Auth.Apply(cfg.APIKey)
	h[name] = value
	for k, v := range cfg.Headers {
		h[k] = v
	}
	return h
}

// SystemPrompt returns the system prompt for p.
func SystemPrompt(p api.Payload) string {
	if p.Instruction != "" {
		return p.Instruction
	}
	if p.TargetLanguage == "" {
		return basePrompt + " Respond in the same language as the selected text."
	}
	return basePrompt + " Respond in " + p.TargetLanguage + "."
}

// UserContent returns the user message for p, with context truncated to
// maxContext runes.
func UserContent(p api.Payload, maxContext int) string {
	ctx := TruncateContext(p.Context, maxContext)
	if ctx == "" {
		return p.Selection
	}
	return p.Selection + "\n\nContext:\n" + ctx
}

// TruncateContext limits s to max runes, appending Ellipsis when it cuts.
// A non-positive max disables truncation.
func TruncateContext(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + Ellipsis
}
