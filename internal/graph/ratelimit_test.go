package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_ThrottleWindow(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 1000})

	assert.Zero(t, limiter.ThrottleDelay())
	assert.True(t, limiter.Allow())

	limiter.RecordThrottle(2)

	delay := limiter.ThrottleDelay()
	assert.Greater(t, delay, 1900*time.Millisecond)
	assert.LessOrEqual(t, delay, 2*time.Second)
	assert.False(t, limiter.Allow(), "requests are blocked inside the window")
}

func TestRateLimiter_NoWindowWithoutHint(t *testing.T) {
	limiter := NewRateLimiter(DefaultRateLimit)

	limiter.RecordThrottle(0)
	limiter.RecordThrottle(-1)

	assert.Zero(t, limiter.ThrottleDelay())
	assert.True(t, limiter.Allow())
}

func TestNewRateLimiter_ZeroConfigFallsBack(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{})

	assert.True(t, limiter.Allow())
}
