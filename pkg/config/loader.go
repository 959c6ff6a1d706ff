package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rhuss/streamgate/pkg/provider"
	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, STREAMGATE_CONFIG env, ./config.yaml, /etc/streamgate/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// Path returns the config file Load would read for configPath, or "" when
// the gateway runs on defaults and environment only.
func Path(configPath string) string {
	return discoverConfigFile(configPath)
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. STREAMGATE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/streamgate/config.yaml
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("STREAMGATE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/streamgate/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps STREAMGATE_* environment variables to config fields.
// Malformed numeric values are ignored and the file or default value stays.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STREAMGATE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("STREAMGATE_DEFAULT_PROVIDER"); v != "" {
		cfg.Gateway.DefaultProvider = v
	}
	if v := os.Getenv("STREAMGATE_CONCURRENCY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.ConcurrencyLimit = n
		}
	}
	if v := os.Getenv("STREAMGATE_MAX_CONTEXT_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.MaxContextLength = n
		}
	}
	if v := os.Getenv("STREAMGATE_UI_LANGUAGE"); v != "" {
		cfg.Gateway.DefaultUILanguage = v
	}
	if v := os.Getenv("STREAMGATE_GENERATE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Gateway.GenerateTimeout = d
		}
	}
	if v := os.Getenv("STREAMGATE_BATCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Gateway.BatchTimeout = d
		}
	}
	if v := os.Getenv("STREAMGATE_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}
	if v := os.Getenv("STREAMGATE_JWT_SECRET"); v != "" {
		cfg.Auth.JWT.Secret = v
	}
	if v := os.Getenv("STREAMGATE_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("STREAMGATE_DEBUG"); v != "" {
		cfg.Observability.Debug = v
	}

	// STREAMGATE_API_KEYS: JSON array of gateway API key configs.
	if v := os.Getenv("STREAMGATE_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err == nil && len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}

	// STREAMGATE_PROVIDERS: JSON array of provider entries, replacing the file's list.
	if v := os.Getenv("STREAMGATE_PROVIDERS"); v != "" {
		entries, err := parseProvidersJSON(v)
		if err == nil && len(entries) > 0 {
			cfg.Providers = entries
		}
	}

	applyProviderKeyOverrides(cfg)
}

// applyProviderKeyOverrides sets credentials from STREAMGATE_<ID>_API_KEY
// for configured providers and known presets. A preset with a key in the
// environment but no config entry gets an entry of its own.
func applyProviderKeyOverrides(cfg *Config) {
	seen := make(map[string]bool, len(cfg.Providers))
	for i := range cfg.Providers {
		seen[cfg.Providers[i].ID] = true
		if v := os.Getenv(providerKeyEnv(cfg.Providers[i].ID)); v != "" {
			cfg.Providers[i].APIKey = v
		}
	}
	for _, id := range provider.PresetIDs() {
		if seen[id] {
			continue
		}
		if v := os.Getenv(providerKeyEnv(id)); v != "" {
			cfg.Providers = append(cfg.Providers, ProviderEntry{ID: id, APIKey: v})
		}
	}
}

// providerKeyEnv returns the credential variable for a provider ID, e.g.
// "open-router" -> "STREAMGATE_OPEN_ROUTER_API_KEY".
func providerKeyEnv(id string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, id)
	return "STREAMGATE_" + name + "_API_KEY"
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// parseProvidersJSON parses a JSON array of provider entries.
func parseProvidersJSON(jsonStr string) ([]ProviderEntry, error) {
	var entries []ProviderEntry
	if err := json.Unmarshal([]byte(jsonStr), &entries); err != nil {
		return nil, fmt.Errorf("parsing providers JSON: %w", err)
	}
	return entries, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.APIKeyFile != "" && p.APIKey == "" {
			val, err := readSecretFile(p.APIKeyFile)
			if err != nil {
				return fmt.Errorf("providers[%d].api_key_file: %w", i, err)
			}
			p.APIKey = val
		}
	}

	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		if k.KeyFile != "" && k.Key == "" {
			val, err := readSecretFile(k.KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			k.Key = val
		}
	}

	if cfg.Auth.JWT.SecretFile != "" && cfg.Auth.JWT.Secret == "" {
		val, err := readSecretFile(cfg.Auth.JWT.SecretFile)
		if err != nil {
			return fmt.Errorf("auth.jwt.secret_file: %w", err)
		}
		cfg.Auth.JWT.Secret = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
