package ratelimiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// unlimitedRate is used when a caller configures zero operations per second.
const unlimitedRate = 1_000_000_000

// RateLimiter throttles background maintenance work (empty-folder pruning,
// metadata recalculation, binary garbage collection) with a token bucket.
//
// Foreground relocation requests are never throttled; only the workers that
// drain deferred queues call Wait before touching storage, so a large move
// cannot saturate the item store with follow-up work.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter   *rate.Limiter
	unlimited bool
}

// New creates a limiter allowing opsPerSecond sustained operations with the
// given burst capacity.
//
// Parameters:
//   - opsPerSecond: Sustained rate. Zero disables throttling.
//   - burst: Bucket capacity. Zero falls back to opsPerSecond.
//
// Example:
//
//	// Prune at most 50 folders/s, allowing short bursts of 100
//	limiter := New(50, 100)
func New(opsPerSecond, burst uint) *RateLimiter {
	if opsPerSecond == 0 {
		return &RateLimiter{
			limiter:   rate.NewLimiter(rate.Limit(unlimitedRate), unlimitedRate),
			unlimited: true,
		}
	}
	if burst == 0 {
		burst = opsPerSecond
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(opsPerSecond), int(burst)),
	}
}

// Unlimited reports whether the limiter was created with a zero rate.
func (r *RateLimiter) Unlimited() bool {
	return r.unlimited
}

// Allow consumes one token if available without blocking.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// AllowN consumes n tokens if all are available without blocking.
func (r *RateLimiter) AllowN(n uint) bool {
	return r.limiter.AllowN(time.Now(), int(n))
}

// Wait blocks until a token is available or ctx is cancelled.
//
// Returns:
//   - nil if a token was acquired
//   - ctx.Err() (or a rate error if the wait would exceed the ctx deadline)
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r.unlimited {
		return ctx.Err()
	}
	return r.limiter.Wait(ctx)
}

// SetLimit changes the sustained rate. Zero disables throttling.
//
// The burst follows the new rate when it was never raised above the old one,
// so a limiter built with New(n, 0) keeps a burst of n after adjustment.
func (r *RateLimiter) SetLimit(opsPerSecond uint) {
	if opsPerSecond == 0 {
		r.unlimited = true
		r.limiter.SetLimit(rate.Limit(unlimitedRate))
		r.limiter.SetBurst(unlimitedRate)
		return
	}

	oldRate := uint(r.limiter.Limit())
	oldBurst := uint(r.limiter.Burst())
	r.unlimited = false
	r.limiter.SetLimit(rate.Limit(opsPerSecond))
	if oldBurst <= oldRate {
		r.limiter.SetBurst(int(opsPerSecond))
	}
}

// Tokens returns the number of tokens currently in the bucket.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
