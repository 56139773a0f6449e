package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiterValidatesConfig(t *testing.T) {
	_, err := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0, BurstSize: 1})
	assert.Error(t, err)

	_, err = NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 0})
	assert.Error(t, err)
}

func TestRateLimiterAllowWithinBurst(t *testing.T) {
	limiter, err := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 3})
	require.NoError(t, err)

	allowed := 0
	for i := 0; i < 5; i++ {
		if limiter.Allow("") {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)

	stats := limiter.Stats("")
	assert.Equal(t, int64(3), stats.Allowed)
	assert.Equal(t, int64(2), stats.Denied)
}

func TestRateLimiterPerKeyIsolation(t *testing.T) {
	limiter, err := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, PerKey: true})
	require.NoError(t, err)
	defer limiter.(interface{ Stop() }).Stop()

	assert.True(t, limiter.Allow("openai"))
	assert.False(t, limiter.Allow("openai"), "openai bucket drained")
	assert.True(t, limiter.Allow("anthropic"), "anthropic bucket untouched")

	stats := limiter.Stats("openai")
	assert.Equal(t, 2, stats.ActiveKeys)
}

func TestRateLimiterWait(t *testing.T) {
	limiter, err := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 100, BurstSize: 1})
	require.NoError(t, err)

	require.NoError(t, limiter.Wait(context.Background(), ""))

	start := time.Now()
	require.NoError(t, limiter.Wait(context.Background(), ""))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond, "second call should wait for a token")
}

func TestRateLimiterWaitHonorsContext(t *testing.T) {
	limiter, err := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1})
	require.NoError(t, err)

	require.NoError(t, limiter.Wait(context.Background(), ""))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(ctx, ""))
}
