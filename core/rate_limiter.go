package core

import (
	"context"
	"time"
)

// RateLimiter paces outbound requests to a provider. The Factory applies
// it, when configured, before every request issued through its services.
type RateLimiter interface {
	// Allow reports whether a request for key may proceed right now.
	Allow(key string) bool

	// Wait blocks until a request for key may proceed, or ctx ends.
	Wait(ctx context.Context, key string) error

	// Stats returns current pacing statistics for key ("" for global).
	Stats(key string) RateLimitStats
}

// RateLimitConfig configures a token-bucket RateLimiter.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// RequestsPerSecond is the sustained allowed rate.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// BurstSize is the maximum burst above the sustained rate. Must be >= 1.
	BurstSize int `yaml:"burst_size"`

	// PerKey enables one bucket per key instead of one global bucket.
	PerKey bool `yaml:"per_key"`

	// KeyTimeout is how long an idle per-key bucket is kept before cleanup.
	KeyTimeout time.Duration `yaml:"key_timeout"`

	// WaitTimeout bounds how long Wait blocks, on top of ctx cancellation.
	// NewRateLimiter replaces zero with 30s.
	WaitTimeout time.Duration `yaml:"wait_timeout"`
}

// DefaultRateLimitConfig is disabled by default so configuring a Factory
// never silently throttles it.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           false,
		RequestsPerSecond: 10.0,
		BurstSize:         20,
		PerKey:            true,
		KeyTimeout:        5 * time.Minute,
		WaitTimeout:       30 * time.Second,
	}
}

// RateLimitStats reports pacing counters for one key.
type RateLimitStats struct {
	Allowed         int64
	Denied          int64
	Waited          int64
	TotalWaitTime   time.Duration
	ActiveKeys      int
	AvailableTokens float64
	LastUpdate      time.Time
}
