package natsclient

import (
	"sync/atomic"
	"time"
)

const initialBackoff = time.Second

// breaker counts connection and publish failures. Every threshold failures
// complete a round; each completed round doubles the backoff up to max.
type breaker struct {
	threshold int32
	max       time.Duration

	total   atomic.Int32
	round   atomic.Int32
	backoff atomic.Int64 // time.Duration
	last    atomic.Int64 // unix nanos, 0 when reset
}

func newBreaker(threshold int32, max time.Duration) *breaker {
	b := &breaker{threshold: threshold, max: max}
	b.backoff.Store(int64(initialBackoff))
	return b
}

// fail records one failure. When it completes a round, fail returns the
// backoff that applied before doubling and true.
func (b *breaker) fail() (time.Duration, bool) {
	b.total.Add(1)
	b.last.Store(time.Now().UnixNano())

	if b.round.Add(1) < b.threshold {
		return 0, false
	}
	b.round.Store(0)

	wait := time.Duration(b.backoff.Load())
	b.backoff.Store(int64(min(wait*2, b.max)))
	return wait, true
}

func (b *breaker) reset() {
	b.total.Store(0)
	b.round.Store(0)
	b.last.Store(0)
	b.backoff.Store(int64(initialBackoff))
}

func (b *breaker) failures() int32 {
	return b.total.Load()
}

func (b *breaker) currentBackoff() time.Duration {
	return time.Duration(b.backoff.Load())
}

func (b *breaker) lastFailure() time.Time {
	ns := b.last.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
