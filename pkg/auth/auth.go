package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Decision is an authenticator's vote.
type Decision int

const (
	// Yes means credentials are valid. The chain stops and the identity is used.
	Yes Decision = iota

	// No means credentials are present but invalid. The chain stops and the
	// request is rejected.
	No

	// Abstain means this authenticator does not handle the presented
	// credentials. The chain continues with the next authenticator.
	Abstain
)

// Result carries the outcome of one authentication attempt.
type Result struct {
	Decision Decision
	Identity *Identity // set only when Decision == Yes
	Err      error     // set only when Decision == No
}

// Identity is an authenticated caller.
type Identity struct {
	// Subject uniquely names the caller and keys its rate limit.
	Subject string

	// Tier selects the rate limit tier. Empty means "default".
	Tier string

	Scopes []string
}

// RateTier returns the tier used for rate limiting.
func (id *Identity) RateTier() string {
	if id == nil || id.Tier == "" {
		return "default"
	}
	return id.Tier
}

// Authenticator examines request credentials and votes.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

// Sentinel errors.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Anonymous is the identity granted when authentication is disabled.
var Anonymous = Identity{Subject: "anonymous", Tier: "default"}

// Chain evaluates authenticators left to right.
type Chain struct {
	Authenticators []Authenticator

	// DefaultDecision applies when every authenticator abstains. Yes grants
	// the Anonymous identity; anything else rejects.
	DefaultDecision Decision
}

// Authenticate runs the chain and stops at the first Yes or No.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.Authenticators {
		if res := a.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}

	if c.DefaultDecision == Yes {
		id := Anonymous
		return Result{Decision: Yes, Identity: &id}
	}
	return Result{Decision: No, Err: ErrUnauthenticated}
}

// BearerToken returns the bearer credential of r. Browsers cannot set
// headers on WebSocket handshakes, so upgrade requests may carry the token
// in the access_token query parameter instead.
func BearerToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		if !strings.HasPrefix(h, "Bearer ") {
			return "", false
		}
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")), true
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		if tok := r.URL.Query().Get("access_token"); tok != "" {
			return tok, true
		}
	}
	return "", false
}
