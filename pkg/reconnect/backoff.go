package reconnect

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxShift caps the exponent of the backoff multiplier.
const maxShift = 5

// expBackOff yields base * 2^min(attempt, 5) plus up to jitter of random
// delay. It implements backoff.BackOff.
type expBackOff struct {
	base    time.Duration
	jitter  time.Duration
	attempt int
	rand    func(n int64) int64
}

var _ backoff.BackOff = (*expBackOff)(nil)

func newExpBackOff(base, jitter time.Duration) *expBackOff {
	return &expBackOff{base: base, jitter: jitter, rand: rand.Int64N}
}

// NextBackOff returns the delay before the next attempt.
func (b *expBackOff) NextBackOff() time.Duration {
	d := b.base * time.Duration(1<<min(b.attempt, maxShift))
	if b.jitter > 0 {
		d += time.Duration(b.rand(int64(b.jitter)))
	}
	b.attempt++
	return d
}

// Reset restarts the sequence.
func (b *expBackOff) Reset() {
	b.attempt = 0
}
