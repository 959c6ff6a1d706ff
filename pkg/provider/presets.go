package provider

import (
	"sort"
	"strings"
)

// Preset holds the static defaults for a known provider.
type Preset struct {
	ID           string
	Name         string
	BaseURL      string
	Path         string
	Format       WireFormat
	Auth         AuthScheme
	Headers      map[string]string
	DefaultModel string
}

// Endpoint returns the preset's full streaming URL.
func (p Preset) Endpoint() string {
	return strings.TrimRight(p.BaseURL, "/") + p.Path
}

const (
	openAIPath    = "/chat/completions"
	anthropicPath = "/messages"

	anthropicVersion = "2023-06-01"
)

var presets = map[string]Preset{
	"openai": {
		ID: "openai", Name: "OpenAI",
		BaseURL: "https://api.openai.com/v1", Path: openAIPath,
		Format: OpenAIStyle, Auth: BearerAuth,
		DefaultModel: "gpt-4o-mini",
	},
	"deepseek": {
		ID: "deepseek", Name: "DeepSeek",
		BaseURL: "https://api.deepseek.com/v1", Path: openAIPath,
		Format: OpenAIStyle, Auth: BearerAuth,
		DefaultModel: "deepseek-chat",
	},
	"openrouter": {
		ID: "openrouter", Name: "OpenRouter",
		BaseURL: "https://openrouter.ai/api/v1", Path: openAIPath,
		Format: OpenAIStyle, Auth: BearerAuth,
		Headers:      map[string]string{"X-Title": "streamgate"},
		DefaultModel: "openai/gpt-4o-mini",
	},
	"groq": {
		ID: "groq", Name: "Groq",
		BaseURL: "https://api.groq.com/openai/v1", Path: openAIPath,
		Format: OpenAIStyle, Auth: BearerAuth,
		DefaultModel: "llama-3.1-8b-instant",
	},
	"mistral": {
		ID: "mistral", Name: "Mistral",
		BaseURL: "https://api.mistral.ai/v1", Path: openAIPath,
		Format: OpenAIStyle, Auth: BearerAuth,
		DefaultModel: "mistral-small-latest",
	},
	"anthropic": {
		ID: "anthropic", Name: "Anthropic",
		BaseURL: "https://api.anthropic.com/v1", Path: anthropicPath,
		Format: AnthropicStyle, Auth: HeaderAuth("x-api-key"),
		Headers:      map[string]string{"anthropic-version": anthropicVersion},
		DefaultModel: "claude-3-5-haiku-latest",
	},
}

// LookupPreset returns the preset registered under id.
func LookupPreset(id string) (Preset, bool) {
	p, ok := presets[strings.ToLower(id)]
	return p, ok
}

// PresetIDs returns the registered preset IDs in sorted order.
func PresetIDs() []string {
	ids := make([]string, 0, len(presets))
	for id := range presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FormatFor returns the wire format a provider speaks. Unknown providers
// are assumed to be OpenAI-compatible.
func FormatFor(id string) WireFormat {
	if p, ok := LookupPreset(id); ok {
		return p.Format
	}
	return OpenAIStyle
}

// PathFor returns the protocol path appended to a base URL for the format.
func PathFor(f WireFormat) string {
	if f == AnthropicStyle {
		return anthropicPath
	}
	return openAIPath
}
