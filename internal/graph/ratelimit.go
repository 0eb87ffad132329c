package graph

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration for one tenant's
// Graph traffic.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate limit.
	RequestsPerSecond float64
	// BurstSize is the maximum burst size.
	BurstSize int
}

// DefaultRateLimit is a conservative default. Graph allows roughly
// 10,000 requests per 10 minutes per tenant (~16.67/sec); staying well
// under it keeps concurrent family fetches from tripping throttling.
var DefaultRateLimit = RateLimitConfig{RequestsPerSecond: 10.0, BurstSize: 15}

// RateLimiter bounds the request rate for one tenant. It combines a token
// bucket with a backoff window set from 429 Retry-After responses, so all
// families syncing the same tenant back off together.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

// NewRateLimiter creates a rate limiter with the given configuration.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg = DefaultRateLimit
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
	}
}

// Wait blocks until a request can be made without exceeding the rate
// limit, honouring any backoff window set by RecordThrottle.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if time.Now().Before(retryAt) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(retryAt)):
		}
	}

	return r.limiter.Wait(ctx)
}

// RecordThrottle records a 429 response carrying an explicit Retry-After
// hint and opens a backoff window for its duration. Without a hint
// (retryAfterSeconds <= 0) no window opens; the caller's own retry
// backoff governs the delay instead.
func (r *RateLimiter) RecordThrottle(retryAfterSeconds int) {
	if retryAfterSeconds <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryAt = time.Now().Add(time.Duration(retryAfterSeconds) * time.Second)
}

// ThrottleDelay returns how long until the current backoff window
// closes, or zero when no window is open. Callers that need an
// injectable clock sleep this themselves and then call WaitBucket.
func (r *RateLimiter) ThrottleDelay() time.Duration {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		return d
	}
	return 0
}

// WaitBucket waits on the token bucket only, ignoring any backoff window.
func (r *RateLimiter) WaitBucket(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow checks if a request can be made immediately without blocking.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if time.Now().Before(retryAt) {
		return false
	}

	return r.limiter.Allow()
}
