package provider

import (
	"fmt"
	"strings"
)

// WireFormat is the family of upstream streaming protocol a provider speaks.
type WireFormat int

const (
	// OpenAIStyle inlines the system message into the messages array and
	// streams choices[0].delta.content frames.
	OpenAIStyle WireFormat = iota

	// AnthropicStyle sends the system prompt as a top-level field and
	// streams typed content_block/message events.
	AnthropicStyle
)

// String returns the configuration name of the format.
func (f WireFormat) String() string {
	switch f {
	case OpenAIStyle:
		return "openai"
	case AnthropicStyle:
		return "anthropic"
	default:
		return fmt.Sprintf("WireFormat(%d)", int(f))
	}
}

// ParseWireFormat converts a configuration name to a WireFormat.
func ParseWireFormat(s string) (WireFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai":
		return OpenAIStyle, nil
	case "anthropic":
		return AnthropicStyle, nil
	default:
		return 0, fmt.Errorf("unknown wire format %q", s)
	}
}

// AuthKind selects how the credential is attached to upstream requests.
type AuthKind int

const (
	// AuthBearer sends "Authorization: Bearer <key>".
	AuthBearer AuthKind = iota

	// AuthHeader sends the raw key in a provider-specific header.
	AuthHeader
)

// AuthScheme is a provider's authentication scheme.
type AuthScheme struct {
	Kind AuthKind

	// Header is the header name for AuthHeader (e.g., "x-api-key").
	Header string
}

// BearerAuth is the scheme used by OpenAI-compatible providers.
var BearerAuth = AuthScheme{Kind: AuthBearer}

// HeaderAuth returns a scheme that sends the raw key in the named header.
func HeaderAuth(name string) AuthScheme {
	return AuthScheme{Kind: AuthHeader, Header: name}
}

// Apply returns the header name and value carrying key.
func (s AuthScheme) Apply(key string) (string, string) {
	if s.Kind == AuthHeader && s.Header != "" {
		return s.Header, key
	}
	return "Authorization", "Bearer " + key
}

// ProviderConfig is the resolved, per-request bundle describing one
// upstream provider.
type ProviderConfig struct {
	// ID is the provider identifier (e.g., "openai", "anthropic").
	ID string

	// Name is a display name used in user-facing messages.
	Name string

	// Endpoint is the full streaming URL.
	Endpoint string

	// Headers are static extra headers merged verbatim into every request.
	Headers map[string]string

	Model       string
	MaxTokens   int
	Temperature float64

	// APIKey is the credential. An empty key fails request building.
	APIKey string

	Format WireFormat
	Auth   AuthScheme
}

// DisplayName returns Name, falling back to ID.
func (c ProviderConfig) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// Request is a fully built upstream request, ready to send.
type Request struct {
	Endpoint string
	Headers  map[string]string
	Body     []byte
}
