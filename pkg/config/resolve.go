package config

import (
	"fmt"
	"strings"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/provider"
)

// ResolveProvider merges the entry configured under id with its preset and
// the gateway defaults. An empty id selects the default provider.
//
// A known preset without a config entry resolves to a config with no
// credential; request building then fails with a localized config_error.
func (c *Config) ResolveProvider(id string) (provider.ProviderConfig, error) {
	if id == "" {
		id = c.Gateway.DefaultProvider
	}

	entry, configured := c.Provider(id)
	if !configured {
		entry = ProviderEntry{ID: id}
	}
	preset, known := provider.LookupPreset(presetName(entry))
	if !configured && !known {
		return provider.ProviderConfig{}, api.NewInvalidRequestError("payload.provider",
			fmt.Sprintf("unknown provider %q", id))
	}

	format := preset.Format
	if entry.Format != "" {
		if f, err := provider.ParseWireFormat(entry.Format); err == nil {
			format = f
		}
	}

	auth := preset.Auth
	if entry.AuthHeader != "" {
		auth = provider.HeaderAuth(entry.AuthHeader)
	}

	endpoint := entry.Endpoint
	if endpoint == "" {
		base := entry.BaseURL
		if base == "" {
			base = preset.BaseURL
		}
		if base != "" {
			endpoint = strings.TrimRight(base, "/") + provider.PathFor(format)
		}
	}

	var headers map[string]string
	if len(preset.Headers)+len(entry.Headers) > 0 {
		headers = make(map[string]string, len(preset.Headers)+len(entry.Headers))
		for k, v := range preset.Headers {
			headers[k] = v
		}
		for k, v := range entry.Headers {
			headers[k] = v
		}
	}

	temp := c.Gateway.DefaultTemp
	if entry.Temp != nil {
		temp = *entry.Temp
	}

	return provider.ProviderConfig{
		ID:          id,
		Name:        firstNonEmpty(entry.Name, preset.Name, id),
		Endpoint:    endpoint,
		Headers:     headers,
		Model:       firstNonEmpty(entry.Model, preset.DefaultModel),
		MaxTokens:   firstPositive(entry.MaxTokens, c.Gateway.DefaultMaxTokens),
		Temperature: temp,
		APIKey:      entry.APIKey,
		Format:      format,
		Auth:        auth,
	}, nil
}

// BuildOptions returns the request builder options for this config.
func (c *Config) BuildOptions() provider.BuildOptions {
	return provider.BuildOptions{
		MaxContextLength:  c.Gateway.MaxContextLength,
		DefaultUILanguage: c.Gateway.DefaultUILanguage,
	}
}

// ValidationConfig returns the inbound request limits for this config.
func (c *Config) ValidationConfig() api.ValidationConfig {
	return api.ValidationConfig{MaxSelectionSize: c.Gateway.MaxSelectionSize}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
