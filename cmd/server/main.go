// Command server runs the streamgate streaming gateway.
//
// Configuration is read from a YAML file (--config, STREAMGATE_CONFIG,
// ./config.yaml or /etc/streamgate/config.yaml) layered over defaults and
// STREAMGATE_* environment overrides. When a file is in use it is watched
// and changes are applied without a restart.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/rhuss/streamgate/pkg/config"
	"github.com/rhuss/streamgate/pkg/debug"
	"github.com/rhuss/streamgate/pkg/engine"
	"github.com/rhuss/streamgate/pkg/queue"
	"github.com/rhuss/streamgate/pkg/relay"
	transporthttp "github.com/rhuss/streamgate/pkg/transport/http"
)

func main() {
	cmd := &cli.Command{
		Name:  "server",
		Usage: "Run the streamgate streaming gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(ctx, cmd.String("config"))
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	debug.Init(cfg.Observability.Debug, cfg.Observability.LogLevel)

	store := config.NewStore(cfg, config.Path(configPath))

	eng, err := engine.New(store,
		engine.WithRelay(relay.New(relay.WithBreaker(breakerConfig(cfg.Breaker)))),
		engine.WithLimit(queue.NewLimitCache(store.ConcurrencyLimit)),
		engine.WithSettings(func() engine.Config { return engineConfig(store.Get()) }),
	)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	store.Subscribe(func(old, cur *config.Config) {
		debug.Init(cur.Observability.Debug, cur.Observability.LogLevel)
		if old.Gateway.ConcurrencyLimit != cur.Gateway.ConcurrencyLimit {
			eng.Invalidate()
		}
		if old.Auth.Type != cur.Auth.Type || old.Breaker != cur.Breaker || old.Server.Port != cur.Server.Port {
			slog.Warn("configuration change requires a restart to take effect")
		}
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if store.Path() != "" {
		if err := store.Watch(ctx); err != nil {
			return fmt.Errorf("watching config: %w", err)
		}
		slog.Info("watching config file", "path", store.Path())
	}

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithAdapterConfig(adapterConfig(cfg, eng)),
		transporthttp.WithOnShutdown(eng.Shutdown),
	}

	authMW, err := buildAuth(cfg.Auth)
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}
	if authMW != nil {
		opts = append(opts, transporthttp.WithHTTPMiddleware(authMW))
		slog.Info("authentication enabled", "type", cfg.Auth.Type)
	}

	srv := transporthttp.NewServer(eng, opts...)

	slog.Info("gateway configured",
		"port", cfg.Server.Port,
		"providers", len(cfg.Providers),
		"default_provider", cfg.Gateway.DefaultProvider,
		"concurrency_limit", store.ConcurrencyLimit(),
	)
	return srv.ListenAndServe()
}

func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		Build:           cfg.BuildOptions(),
		Validation:      cfg.ValidationConfig(),
		GenerateTimeout: cfg.Gateway.GenerateTimeout,
		BatchTimeout:    cfg.Gateway.BatchTimeout,
	}
}

func breakerConfig(b config.BreakerConfig) relay.BreakerConfig {
	return relay.BreakerConfig{
		Enabled:          b.Enabled,
		FailureThreshold: uint32(max(b.FailureThreshold, 0)),
		OpenTimeout:      b.OpenTimeout,
		HalfOpenRequests: uint32(max(b.HalfOpenRequests, 0)),
	}
}

func adapterConfig(cfg *config.Config, eng *engine.Engine) transporthttp.Config {
	ac := transporthttp.DefaultConfig()
	ac.AllowedOrigins = cfg.Server.AllowedOrigins
	ac.MetricsPath = ""
	if cfg.Observability.Metrics.Enabled {
		ac.MetricsPath = cfg.Observability.Metrics.Path
	}
	ac.Status = func() any { return eng.Stats() }
	return ac
}
