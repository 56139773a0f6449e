package core

import (
	"fmt"
	"time"
)

// RuntimeConfig configures the Factory's own knobs: caching TTL, retry
// policy, per-attempt timeout, and rate limiting. It is configuration for
// the runtime, not for applications built on it — it never carries a
// provider credential.
type RuntimeConfig struct {
	// ServiceTTL bounds how long a cached Adapter instance is reused before
	// the Factory disposes and rebuilds it.
	ServiceTTL time.Duration `yaml:"service_ttl"`

	Retry RetryPolicy `yaml:"retry"`

	// RequestTimeout bounds a single StreamChat/SampleText attempt.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`

	ModelCache ModelCacheConfig `yaml:"model_cache"`
}

// ModelCacheConfig selects the backend adapters use to cache their
// ListModels results: the in-process memory cache (default) or Redis, for
// deployments that want the catalog shared across processes.
type ModelCacheConfig struct {
	// Backend is "memory" (default when empty) or "redis".
	Backend string `yaml:"backend"`

	TTL time.Duration `yaml:"ttl"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// DefaultRuntimeConfig returns the Factory's defaults: a one-hour service
// TTL, a single attempt (no retry), a 30s per-attempt timeout, rate
// limiting disabled, in-memory model caching.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		ServiceTTL:     time.Hour,
		Retry:          DefaultRetryPolicy(),
		RequestTimeout: 30 * time.Second,
		RateLimit:      DefaultRateLimitConfig(),
		ModelCache:     ModelCacheConfig{Backend: "memory", TTL: time.Hour},
	}
}

// Validate checks the structural invariants a YAML-loaded config must
// satisfy before the Factory uses it.
func (c RuntimeConfig) Validate() error {
	if c.ServiceTTL < 0 {
		return fmt.Errorf("service_ttl must be >= 0, got %s", c.ServiceTTL)
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must be >= 0, got %d", c.Retry.MaxAttempts)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must be >= 0, got %s", c.RequestTimeout)
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second must be positive when enabled, got %f", c.RateLimit.RequestsPerSecond)
	}
	switch c.ModelCache.Backend {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("model_cache.backend must be \"memory\" or \"redis\", got %q", c.ModelCache.Backend)
	}
	if c.ModelCache.Backend == "redis" && c.ModelCache.RedisAddr == "" {
		return fmt.Errorf("model_cache.redis_addr is required when backend is redis")
	}
	return nil
}
