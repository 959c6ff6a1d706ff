package relay

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/observability"
)

// BreakerConfig controls the per-upstream circuit breakers.
type BreakerConfig struct {
	Enabled bool

	// FailureThreshold is the number of consecutive upstream failures
	// (network errors or 5xx) that opens the breaker.
	FailureThreshold uint32

	// OpenTimeout is how long the breaker stays open before letting a
	// probe request through.
	OpenTimeout time.Duration

	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultBreakerConfig returns the breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:          true,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// breakerSet keeps one circuit breaker per upstream endpoint.
type breakerSet struct {
	cfg      BreakerConfig
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func newBreakerSet(cfg BreakerConfig) *breakerSet {
	return &breakerSet{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// get returns the breaker for endpoint, or nil when breakers are disabled.
func (s *breakerSet) get(endpoint string) *gobreaker.CircuitBreaker {
	if !s.cfg.Enabled {
		return nil
	}

	s.mu.RLock()
	cb, ok := s.breakers[endpoint]
	s.mu.RUnlock()
	if ok {
		return cb
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cb, ok := s.breakers[endpoint]; ok {
		return cb
	}

	threshold := s.cfg.FailureThreshold
	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        endpoint,
		MaxRequests: s.cfg.HalfOpenRequests,
		Timeout:     s.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("upstream circuit breaker state changed",
				"upstream", name, "from", from.String(), "to", to.String())
			observability.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	s.breakers[endpoint] = cb
	observability.BreakerState.WithLabelValues(endpoint).Set(float64(gobreaker.StateClosed))
	return cb
}

// states returns the current state of every known breaker.
func (s *breakerSet) states() map[string]gobreaker.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]gobreaker.State, len(s.breakers))
	for name, cb := range s.breakers {
		out[name] = cb.State()
	}
	return out
}

// isBreakerSuccess counts only upstream-side failures against the breaker.
// Client errors (4xx) and our own cancellations leave it untouched.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, errCanceled) {
		return true
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.Type == api.ErrorTypeHTTP {
		return apiErr.Status < 500
	}
	return false
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
