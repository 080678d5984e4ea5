package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBucketBurstThenDeny(t *testing.T) {
	b := NewBucket(Limits{PerWindow: 5, ElevatedPerWindow: 10, Window: time.Hour})

	for i := 0; i < 5; i++ {
		assert.True(t, b.TryAcquire(), "send %d should pass within burst", i)
	}
	// Window is an hour, so no refill arrives during the test.
	assert.False(t, b.TryAcquire(), "send past the window count must be denied")
}

func TestBucketElevatedMode(t *testing.T) {
	b := NewBucket(Limits{PerWindow: 2, ElevatedPerWindow: 6, Window: time.Hour})

	assert.False(t, b.Elevated())
	for i := 0; i < 2; i++ {
		assert.True(t, b.TryAcquire())
	}
	assert.False(t, b.TryAcquire())

	b.SetElevated(true)
	assert.True(t, b.Elevated())
	for i := 0; i < 6; i++ {
		assert.True(t, b.TryAcquire(), "elevated send %d", i)
	}
	assert.False(t, b.TryAcquire())

	// Dropping back does not grant a fresh regular burst: that bucket was
	// drained earlier and refills on its own clock.
	b.SetElevated(false)
	assert.False(t, b.TryAcquire())
}

func TestBucketRefill(t *testing.T) {
	b := NewBucket(Limits{PerWindow: 2, ElevatedPerWindow: 4, Window: 100 * time.Millisecond})

	assert.True(t, b.TryAcquire())
	assert.True(t, b.TryAcquire())
	assert.False(t, b.TryAcquire())

	// One token refills every Window/PerWindow = 50ms.
	time.Sleep(70 * time.Millisecond)
	assert.True(t, b.TryAcquire())
}

func TestDefaultsApplied(t *testing.T) {
	b := NewBucket(Limits{})
	for i := 0; i < DefaultLimits().PerWindow; i++ {
		assert.True(t, b.TryAcquire(), "send %d within published burst", i)
	}
	assert.False(t, b.TryAcquire())
}
