package engine

import (
	"time"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/provider"
	"github.com/rhuss/streamgate/pkg/relay"
)

// Config holds the per-request settings of the engine. It is read once per
// request, so a reloaded configuration applies to the next request.
type Config struct {
	Build      provider.BuildOptions
	Validation api.ValidationConfig

	// GenerateTimeout bounds a generate stream. Zero means the relay default.
	GenerateTimeout time.Duration

	// BatchTimeout bounds a batchGenerate stream once it has started.
	// Zero means the relay default.
	BatchTimeout time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Build:           provider.DefaultBuildOptions(),
		Validation:      api.DefaultValidationConfig(),
		GenerateTimeout: relay.DefaultTimeout,
		BatchTimeout:    relay.DefaultBatchTimeout,
	}
}

func (c Config) timeoutFor(req api.Request) time.Duration {
	if req.IsBatch() {
		if c.BatchTimeout > 0 {
			return c.BatchTimeout
		}
		return relay.DefaultBatchTimeout
	}
	if c.GenerateTimeout > 0 {
		return c.GenerateTimeout
	}
	return relay.DefaultTimeout
}
