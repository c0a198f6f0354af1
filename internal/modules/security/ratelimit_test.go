package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_WithinBudget(t *testing.T) {
	limiter := NewRateLimiter(3, time.Minute)

	assert.True(t, limiter.Allow("p1"))
	assert.True(t, limiter.Allow("p1"))
	assert.True(t, limiter.Allow("p1"))
	assert.False(t, limiter.Allow("p1"))
}

func TestRateLimiter_PerPlayerBudgets(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)

	assert.True(t, limiter.Allow("p1"))
	assert.False(t, limiter.Allow("p1"))
	assert.True(t, limiter.Allow("p2"))
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return current }

	assert.True(t, limiter.Allow("p1"))
	assert.True(t, limiter.Allow("p1"))
	assert.False(t, limiter.Allow("p1"))

	// Once the window passes, the budget is fresh.
	current = current.Add(61 * time.Second)
	assert.True(t, limiter.Allow("p1"))
}

func TestRateLimiter_RejectedCallsStillCount(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)
	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return current }

	assert.True(t, limiter.Allow("p1"))
	for i := 0; i < 5; i++ {
		current = current.Add(10 * time.Second)
		assert.False(t, limiter.Allow("p1"))
	}

	// Hammering kept the window full, so the budget never recovered.
	current = current.Add(55 * time.Second)
	assert.False(t, limiter.Allow("p1"))
}
