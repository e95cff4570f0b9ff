package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestRateLimiter tests the token bucket.
// It verifies that a full burst is allowed, the next message is refused, and
// tokens refill in proportion to elapsed time without exceeding capacity.
func TestRateLimiter(t *testing.T) {
	now := time.Unix(0, 0)
	rl := newRateLimiter(RateLimitConfig{Burst: 3, RefillInterval: 3 * time.Second})
	rl.now = func() time.Time { return now }
	rl.lastCheck = now

	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow(), "message %d within burst", i)
	}
	assert.False(t, rl.allow())

	now = now.Add(time.Second)
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())

	now = now.Add(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow())
	}
	assert.False(t, rl.allow())
}

// TestRateLimiterInvalidConfig tests that a zero config still yields a limiter.
func TestRateLimiterInvalidConfig(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{})
	assert.True(t, rl.allow())
}
