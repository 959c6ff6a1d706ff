package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/rhuss/streamgate/pkg/provider"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
//
// Missing provider credentials are not a validation error: they surface
// per request as a localized config_error, so the gateway can start before
// every key is provisioned.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	if c.Gateway.DefaultProvider == "" {
		errs = append(errs, fmt.Errorf("gateway.default_provider is required"))
	} else if _, ok := c.Provider(c.Gateway.DefaultProvider); !ok {
		if _, ok := provider.LookupPreset(c.Gateway.DefaultProvider); !ok {
			errs = append(errs, fmt.Errorf("gateway.default_provider %q is neither configured nor a known preset", c.Gateway.DefaultProvider))
		}
	}

	if c.Gateway.MaxContextLength < 0 {
		errs = append(errs, fmt.Errorf("gateway.max_context_length must be >= 0, got %d", c.Gateway.MaxContextLength))
	}
	if c.Gateway.GenerateTimeout <= 0 {
		errs = append(errs, fmt.Errorf("gateway.generate_timeout must be > 0"))
	}
	if c.Gateway.BatchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("gateway.batch_timeout must be > 0"))
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		errs = append(errs, validateProvider(i, p)...)
		if p.ID != "" && seen[p.ID] {
			errs = append(errs, fmt.Errorf("providers[%d].id %q is duplicated", i, p.ID))
		}
		seen[p.ID] = true
	}

	if c.Breaker.Enabled && c.Breaker.FailureThreshold <= 0 {
		errs = append(errs, fmt.Errorf("breaker.failure_threshold must be > 0 when the breaker is enabled"))
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
			}
		}
	case "jwt":
		if c.Auth.JWT.Secret == "" && c.Auth.JWT.SecretFile == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.secret or auth.jwt.secret_file is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	if c.Auth.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("auth.rate_limit.requests_per_minute must be >= 0"))
	}

	return errors.Join(errs...)
}

func validateProvider(i int, p ProviderEntry) []error {
	var errs []error

	if p.ID == "" {
		errs = append(errs, fmt.Errorf("providers[%d].id is required", i))
	}

	if p.Format != "" {
		if _, err := provider.ParseWireFormat(p.Format); err != nil {
			errs = append(errs, fmt.Errorf("providers[%d].format must be \"openai\" or \"anthropic\", got %q", i, p.Format))
		}
	}

	if p.Preset != "" {
		if _, ok := provider.LookupPreset(p.Preset); !ok {
			errs = append(errs, fmt.Errorf("providers[%d].preset %q is not a known preset", i, p.Preset))
		}
	}

	_, known := provider.LookupPreset(presetName(p))
	if !known && p.Endpoint == "" && p.BaseURL == "" {
		errs = append(errs, fmt.Errorf("providers[%d]: endpoint or base_url is required for custom provider %q", i, p.ID))
	}

	urls := []struct{ field, raw string }{
		{"endpoint", p.Endpoint},
		{"base_url", p.BaseURL},
	}
	for _, f := range urls {
		if f.raw == "" {
			continue
		}
		u, err := url.Parse(f.raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("providers[%d].%s %q is not an absolute URL", i, f.field, f.raw))
		}
	}

	return errs
}

// presetName returns the preset an entry inherits from.
func presetName(p ProviderEntry) string {
	if p.Preset != "" {
		return p.Preset
	}
	return p.ID
}
