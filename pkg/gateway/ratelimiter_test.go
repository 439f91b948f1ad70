package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientRateLimiter_Acquire(t *testing.T) {
	t.Run("should allow requests under limit", func(t *testing.T) {
		limiter := NewClientRateLimiterWithLimits(100, 10, 5)

		for i := 0; i < 5; i++ {
			allowed, reason := limiter.Acquire()
			assert.True(t, allowed)
			assert.Empty(t, reason)
		}
		assert.Equal(t, 5, limiter.InFlight())
	})

	t.Run("should reject when concurrent limit exceeded", func(t *testing.T) {
		limiter := NewClientRateLimiterWithLimits(100, 100, 3)

		for i := 0; i < 3; i++ {
			allowed, _ := limiter.Acquire()
			assert.True(t, allowed)
		}

		allowed, reason := limiter.Acquire()
		assert.False(t, allowed)
		assert.Equal(t, "too many concurrent requests", reason)
	})

	t.Run("should reject when burst exhausted", func(t *testing.T) {
		limiter := NewClientRateLimiterWithLimits(0.001, 2, 10)

		for i := 0; i < 2; i++ {
			allowed, _ := limiter.Acquire()
			assert.True(t, allowed)
			limiter.Release()
		}

		allowed, reason := limiter.Acquire()
		assert.False(t, allowed)
		assert.Equal(t, "rate limit exceeded", reason)
	})

	t.Run("release frees a concurrent slot", func(t *testing.T) {
		limiter := NewClientRateLimiterWithLimits(100, 100, 1)

		allowed, _ := limiter.Acquire()
		assert.True(t, allowed)
		allowed, _ = limiter.Acquire()
		assert.False(t, allowed)

		limiter.Release()
		allowed, _ = limiter.Acquire()
		assert.True(t, allowed)
	})

	t.Run("release never goes negative", func(t *testing.T) {
		limiter := NewClientRateLimiter()
		limiter.Release()
		assert.Equal(t, 0, limiter.InFlight())
	})
}
