package main

import (
	"fmt"
	"net/http"

	"github.com/rhuss/streamgate/pkg/auth"
	"github.com/rhuss/streamgate/pkg/auth/apikey"
	"github.com/rhuss/streamgate/pkg/auth/jwt"
	"github.com/rhuss/streamgate/pkg/config"
)

// buildAuth returns the authentication middleware for cfg, or nil when
// authentication is disabled.
func buildAuth(cfg config.AuthConfig) (func(http.Handler) http.Handler, error) {
	var authenticator auth.Authenticator

	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "apikey":
		entries := make([]apikey.Entry, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			entries = append(entries, apikey.Entry{
				Key:      k.Key,
				Identity: auth.Identity{Subject: k.Subject, Tier: k.Tier},
			})
		}
		authenticator = apikey.New(entries)
	case "jwt":
		a, err := jwt.New(jwt.Config{
			Secret:    []byte(cfg.JWT.Secret),
			Issuer:    cfg.JWT.Issuer,
			Audience:  cfg.JWT.Audience,
			UserClaim: cfg.JWT.UserClaim,
			TierClaim: cfg.JWT.TierClaim,
			Leeway:    cfg.JWT.Leeway,
		})
		if err != nil {
			return nil, err
		}
		authenticator = a
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}

	chain := &auth.Chain{
		Authenticators:  []auth.Authenticator{authenticator},
		DefaultDecision: auth.No,
	}
	return auth.Middleware(chain, buildLimiter(cfg.RateLimit), auth.DefaultBypassEndpoints), nil
}

// buildLimiter returns nil when no rate limit is configured.
func buildLimiter(cfg config.RateLimitConfig) auth.RateLimiter {
	if cfg.RequestsPerMinute <= 0 && len(cfg.Tiers) == 0 {
		return nil
	}
	tiers := make(map[string]auth.TierLimit, len(cfg.Tiers))
	for name, t := range cfg.Tiers {
		tiers[name] = auth.TierLimit{RequestsPerMinute: t.RequestsPerMinute, Burst: t.Burst}
	}
	return auth.NewTokenBucketLimiter(tiers, auth.TierLimit{
		RequestsPerMinute: cfg.RequestsPerMinute,
		Burst:             cfg.Burst,
	})
}
