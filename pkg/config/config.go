// Package config provides unified configuration for the streamgate gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (STREAMGATE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
//
// A Store holds the active configuration and can watch the file for changes.
package config

import "time"

// Config holds all configuration for the streamgate gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Providers     []ProviderEntry     `yaml:"providers"`
	Breaker       BreakerConfig       `yaml:"breaker"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 120s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 15s

	// AllowedOrigins lists origins accepted for WebSocket upgrades. Empty
	// means same-origin only; "*" accepts any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GatewayConfig holds request handling and scheduling settings.
type GatewayConfig struct {
	DefaultProvider   string        `yaml:"default_provider"`    // default: "openai"
	ConcurrencyLimit  int           `yaml:"concurrency_limit"`   // default: 3, clamped to [1,20]
	MaxContextLength  int           `yaml:"max_context_length"`  // default: 2000 runes
	DefaultUILanguage string        `yaml:"default_ui_language"` // default: "en"
	MaxSelectionSize  int           `yaml:"max_selection_size"`  // default: 64 KiB
	GenerateTimeout   time.Duration `yaml:"generate_timeout"`    // default: 30s
	BatchTimeout      time.Duration `yaml:"batch_timeout"`       // default: 45s
	DefaultMaxTokens  int           `yaml:"default_max_tokens"`  // default: 1024
	DefaultTemp       float64       `yaml:"default_temperature"` // default: 0.3
}

// ProviderEntry configures one upstream provider. Fields left empty are
// filled from the preset named by Preset, or by ID when Preset is empty.
type ProviderEntry struct {
	ID         string            `yaml:"id" json:"id"`
	Name       string            `yaml:"name" json:"name"`
	Preset     string            `yaml:"preset" json:"preset"`
	BaseURL    string            `yaml:"base_url" json:"base_url"`
	Endpoint   string            `yaml:"endpoint" json:"endpoint"`
	Format     string            `yaml:"format" json:"format"`           // "openai" or "anthropic"
	AuthHeader string            `yaml:"auth_header" json:"auth_header"` // raw-key header; empty means Bearer
	Model      string            `yaml:"model" json:"model"`
	MaxTokens  int               `yaml:"max_tokens" json:"max_tokens"`
	Temp       *float64          `yaml:"temperature" json:"temperature"`
	APIKey     string            `yaml:"api_key" json:"api_key"`
	APIKeyFile string            `yaml:"api_key_file" json:"api_key_file"` // _file variant for api_key
	Headers    map[string]string `yaml:"headers" json:"headers"`
}

// BreakerConfig holds per-upstream circuit breaker settings.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`            // default: true
	FailureThreshold int           `yaml:"failure_threshold"`  // default: 5
	OpenTimeout      time.Duration `yaml:"open_timeout"`       // default: 30s
	HalfOpenRequests int           `yaml:"half_open_requests"` // default: 1
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type"`     // "none", "apikey", "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"` // API key entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key     string `yaml:"key" json:"key"`
	KeyFile string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject string `yaml:"subject" json:"subject"`
	Tier    string `yaml:"tier" json:"tier"`
}

// JWTConfig holds settings for HMAC-signed bearer tokens.
type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	SecretFile string        `yaml:"secret_file"` // _file variant for secret
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	UserClaim  string        `yaml:"user_claim"` // default: "sub"
	TierClaim  string        `yaml:"tier_claim"` // default: "tier"
	Leeway     time.Duration `yaml:"leeway"`
}

// RateLimitConfig holds per-subject request rate limits.
type RateLimitConfig struct {
	RequestsPerMinute int                   `yaml:"requests_per_minute"` // 0 disables
	Burst             int                   `yaml:"burst"`
	Tiers             map[string]TierConfig `yaml:"tiers"`
}

// TierConfig overrides the rate limit for one service tier.
type TierConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// ObservabilityConfig holds monitoring and logging settings.
type ObservabilityConfig struct {
	Metrics  MetricsConfig `yaml:"metrics"`
	LogLevel string        `yaml:"log_level"` // debug, info, warn, error
	Debug    string        `yaml:"debug"`     // comma-separated debug categories
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Gateway: GatewayConfig{
			DefaultProvider:   "openai",
			ConcurrencyLimit:  3,
			MaxContextLength:  2000,
			DefaultUILanguage: "en",
			MaxSelectionSize:  64 * 1024,
			GenerateTimeout:   30 * time.Second,
			BatchTimeout:      45 * time.Second,
			DefaultMaxTokens:  1024,
			DefaultTemp:       0.3,
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
			HalfOpenRequests: 1,
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
			LogLevel: "info",
		},
	}
}

// Provider returns the entry with the given ID.
func (c *Config) Provider(id string) (ProviderEntry, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderEntry{}, false
}
