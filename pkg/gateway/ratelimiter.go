package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// Default per-client limits
const (
	DefaultRequestsPerSecond = 20
	DefaultBurst             = 40
	DefaultMaxConcurrent     = 4
)

// ClientRateLimiter combines a token bucket with a cap on requests being
// served at once
type ClientRateLimiter struct {
	mu            sync.Mutex
	limiter       *rate.Limiter
	maxConcurrent int
	inFlight      int
}

// NewClientRateLimiter creates a limiter with the default limits
func NewClientRateLimiter() *ClientRateLimiter {
	return NewClientRateLimiterWithLimits(DefaultRequestsPerSecond, DefaultBurst, DefaultMaxConcurrent)
}

// NewClientRateLimiterWithLimits creates a limiter allowing perSecond
// requests with the given burst and at most maxConcurrent in flight
func NewClientRateLimiterWithLimits(perSecond float64, burst, maxConcurrent int) *ClientRateLimiter {
	return &ClientRateLimiter{
		limiter:       rate.NewLimiter(rate.Limit(perSecond), burst),
		maxConcurrent: maxConcurrent,
	}
}

// Acquire reserves a slot for one request. On success the caller must call
// Release when the request is done; on failure reason says which limit hit.
func (r *ClientRateLimiter) Acquire() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxConcurrent > 0 && r.inFlight >= r.maxConcurrent {
		return false, "too many concurrent requests"
	}
	if !r.limiter.Allow() {
		return false, "rate limit exceeded"
	}
	r.inFlight++
	return true, ""
}

// Release frees a slot taken by Acquire
func (r *ClientRateLimiter) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight > 0 {
		r.inFlight--
	}
}

// InFlight returns the number of requests being served
func (r *ClientRateLimiter) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight
}
