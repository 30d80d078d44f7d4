// Package ratelimit implements a continuous-refill token bucket used for
// ingress admission control: shed excess datagrams at the socket before
// they cost parsing and detection work.
package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a standard token bucket. Tokens accrue at Rate per second up
// to Capacity; each admitted datagram consumes one token.
//
// A Rate of 0 disables the bucket entirely: TryAcquire always admits and
// touches no state.
//
// Thread Safety: guarded by a mutex. The ingress loop is the single
// consumer, so contention is limited to the periodic drop reporter.
type Bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	capacity   float64
	rate       float64
	dropped    uint64
}

// New creates a bucket admitting ratePerSec datagrams per second with the
// given burst capacity. ratePerSec == 0 returns a disabled bucket.
func New(ratePerSec, burst uint32) *Bucket {
	return &Bucket{
		tokens:   float64(burst),
		capacity: float64(burst),
		rate:     float64(ratePerSec),
	}
}

// Disabled reports whether the bucket admits everything.
func (b *Bucket) Disabled() bool {
	return b.rate == 0
}

// TryAcquire refills elapsed tokens and consumes one if available.
// Returns false — and counts a drop — when the bucket is empty.
func (b *Bucket) TryAcquire(now time.Time) bool {
	if b.rate == 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lastRefill.IsZero() {
		b.lastRefill = now
	} else {
		elapsed := now.Sub(b.lastRefill).Seconds()
		if elapsed > 0 {
			b.tokens += elapsed * b.rate
			if b.tokens > b.capacity {
				b.tokens = b.capacity
			}
			b.lastRefill = now
		}
	}

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true
	}

	b.dropped++
	return false
}

// SnapshotDropped returns the drop count accumulated since the last call
// and resets it. The periodic reporter uses this to log shed load.
func (b *Bucket) SnapshotDropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.dropped
	b.dropped = 0
	return n
}
