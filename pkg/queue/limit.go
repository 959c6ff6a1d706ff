package queue

import "sync"

// Concurrency limit bounds.
const (
	MinLimit     = 1
	MaxLimit     = 20
	DefaultLimit = 3
)

// ClampLimit maps a configured value into [MinLimit, MaxLimit]. Zero means
// unset and yields DefaultLimit.
func ClampLimit(n int) int {
	switch {
	case n == 0:
		return DefaultLimit
	case n < MinLimit:
		return MinLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}

// LimitCache reads the concurrency limit lazily and caches it until
// Invalidate is called.
type LimitCache struct {
	mu     sync.Mutex
	read   func() int
	cached int
	valid  bool
}

// NewLimitCache returns a cache backed by read. A nil read always yields
// DefaultLimit.
func NewLimitCache(read func() int) *LimitCache {
	if read == nil {
		read = func() int { return DefaultLimit }
	}
	return &LimitCache{read: read}
}

// StaticLimit returns a cache that always yields n (clamped).
func StaticLimit(n int) *LimitCache {
	return NewLimitCache(func() int { return n })
}

// Get returns the cached limit, reading it first if needed.
func (c *LimitCache) Get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid {
		c.cached = ClampLimit(c.read())
		c.valid = true
	}
	return c.cached
}

// Invalidate forces the next Get to read the limit again.
func (c *LimitCache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}
