package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBucket_BurstThenEmpty(t *testing.T) {
	b := New(10, 3)
	now := time.Now()

	for i := 0; i < 3; i++ {
		assert.True(t, b.TryAcquire(now), "burst token %d", i+1)
	}
	assert.False(t, b.TryAcquire(now), "bucket should be empty")
	assert.Equal(t, uint64(1), b.SnapshotDropped())
}

func TestBucket_RefillOverTime(t *testing.T) {
	b := New(10, 5)
	now := time.Now()

	for i := 0; i < 5; i++ {
		b.TryAcquire(now)
	}
	assert.False(t, b.TryAcquire(now))

	// 10 tokens/s: 300ms buys 3 tokens.
	later := now.Add(300 * time.Millisecond)
	assert.True(t, b.TryAcquire(later))
	assert.True(t, b.TryAcquire(later))
	assert.True(t, b.TryAcquire(later))
	assert.False(t, b.TryAcquire(later))
}

func TestBucket_RefillClampedAtCapacity(t *testing.T) {
	b := New(100, 2)
	now := time.Now()

	b.TryAcquire(now)

	// A long idle period must not bank more than the burst capacity.
	later := now.Add(time.Hour)
	assert.True(t, b.TryAcquire(later))
	assert.True(t, b.TryAcquire(later))
	assert.False(t, b.TryAcquire(later))
}

func TestBucket_DisabledAdmitsEverything(t *testing.T) {
	b := New(0, 0)
	assert.True(t, b.Disabled())

	now := time.Now()
	for i := 0; i < 10000; i++ {
		assert.True(t, b.TryAcquire(now))
	}
	assert.Equal(t, uint64(0), b.SnapshotDropped())
}

func TestBucket_SnapshotResets(t *testing.T) {
	b := New(1, 1)
	now := time.Now()

	b.TryAcquire(now)
	b.TryAcquire(now)
	b.TryAcquire(now)

	assert.Equal(t, uint64(2), b.SnapshotDropped())
	assert.Equal(t, uint64(0), b.SnapshotDropped())
}

func BenchmarkBucket_TryAcquire(b *testing.B) {
	bucket := New(1_000_000, 1_000_000)
	now := time.Now()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bucket.TryAcquire(now)
	}
}
