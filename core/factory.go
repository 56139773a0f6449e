package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// AdapterBuilder constructs a fresh Adapter for a provider given a
// credential string (API key, bearer token, or similar) and a model name.
// Each adapters/*.go file registers one of these against its ProviderTag.
type AdapterBuilder func(credential, model string, logger Logger) (Adapter, error)

type cachedService struct {
	adapter   Adapter
	expiresAt time.Time
}

// Factory builds and caches one Adapter per (provider, credential) pair so
// that repeated requests for the same provider configuration reuse a live
// adapter instance instead of reconnecting every call. Built adapters
// receive the factory's retry policy, per-attempt timeout, rate limiter and
// model cache through the RuntimeAware hook.
type Factory struct {
	mu       sync.Mutex
	services map[string]*cachedService
	builders map[ProviderTag]AdapterBuilder

	cfg        RuntimeConfig
	logger     Logger
	limiter    RateLimiter
	modelCache ModelCache
}

// FactoryOption configures a Factory at construction time.
type FactoryOption func(*Factory)

// WithRuntimeConfig overrides the default RuntimeConfig.
func WithRuntimeConfig(cfg RuntimeConfig) FactoryOption {
	return func(f *Factory) { f.cfg = cfg }
}

// WithLogger attaches a Logger; defaults to NoopLogger.
func WithLogger(logger Logger) FactoryOption {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithRateLimiter attaches a shared RateLimiter applied before every
// StreamChat/SampleText call issued through services this factory hands
// out. Overrides the limiter the Factory would otherwise build from
// RuntimeConfig.RateLimit.
func WithRateLimiter(limiter RateLimiter) FactoryOption {
	return func(f *Factory) { f.limiter = limiter }
}

// WithModelCache attaches a shared ModelCache handed to every adapter this
// factory builds, replacing each adapter's private in-memory cache.
// Overrides the backend the Factory would otherwise build from
// RuntimeConfig.ModelCache.
func WithModelCache(cache ModelCache) FactoryOption {
	return func(f *Factory) { f.modelCache = cache }
}

// NewFactory builds a Factory with the given provider builders registered.
func NewFactory(builders map[ProviderTag]AdapterBuilder, opts ...FactoryOption) *Factory {
	f := &Factory{
		services: make(map[string]*cachedService),
		builders: builders,
		cfg:      DefaultRuntimeConfig(),
		logger:   NoopLogger{},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.limiter == nil && f.cfg.RateLimit.Enabled {
		limiter, err := NewRateLimiter(f.cfg.RateLimit)
		if err != nil {
			f.logger.Warn(context.Background(), "factory: rate limit config invalid, pacing disabled",
				F("error", err.Error()))
		} else {
			f.limiter = limiter
		}
	}
	if f.modelCache == nil && f.cfg.ModelCache.Backend == "redis" {
		cache, err := NewRedisModelCache(f.cfg.ModelCache.RedisAddr, f.cfg.ModelCache.RedisPassword,
			f.cfg.ModelCache.RedisDB, f.cfg.ModelCache.TTL)
		if err != nil {
			f.logger.Warn(context.Background(), "factory: redis model cache unavailable, using per-adapter memory caches",
				F("error", err.Error()))
		} else {
			f.modelCache = cache
		}
	}
	return f
}

// fingerprint returns a SHA-256 hex digest of the credential so a cache
// key never contains the credential itself.
func fingerprint(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

func serviceKey(provider ProviderTag, credential string) string {
	return fmt.Sprintf("%s:%s", provider, fingerprint(credential))
}

// GetService returns a cached Adapter for (provider, credential), building
// and caching a new one if none exists or the cached entry's TTL has
// expired. The cache holds at most one entry per (provider, credential)
// pair; model only seeds the adapter's default and is overridable per call
// via StreamOptions.Model. GetService never fails: when no builder is
// registered or the builder errors, the cause is logged and a no-op
// EmptyAdapter is returned (and not cached, so the next call retries
// construction). Safe for concurrent use; the whole cache is guarded by a
// single mutex. Adapter construction is cheap (an HTTP client, not a live
// connection), so contention is not a concern here.
func (f *Factory) GetService(provider ProviderTag, credential, model string) Adapter {
	key := serviceKey(provider, credential)

	f.mu.Lock()
	defer f.mu.Unlock()

	if entry, ok := f.services[key]; ok {
		if time.Now().Before(entry.expiresAt) {
			return entry.adapter
		}
		_ = entry.adapter.Dispose()
		delete(f.services, key)
	}

	builder, ok := f.builders[provider]
	if !ok {
		f.logger.Error(context.Background(), "factory: no adapter builder registered, returning empty adapter",
			F("provider", string(provider)))
		return NewEmptyAdapter(f.logger)
	}

	adapter, err := builder(credential, model, f.logger)
	if err != nil {
		f.logger.Error(context.Background(), "factory: adapter construction failed, returning empty adapter",
			F("provider", string(provider)), F("error", err.Error()))
		return NewEmptyAdapter(f.logger)
	}
	if aware, ok := adapter.(RuntimeAware); ok {
		aware.ApplyRuntime(f.cfg.Retry, f.cfg.RequestTimeout, f.limiter, f.modelCache)
	}

	ttl := f.cfg.ServiceTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	f.services[key] = &cachedService{adapter: adapter, expiresAt: time.Now().Add(ttl)}
	return adapter
}

// Limiter returns the factory's shared RateLimiter, or nil if none is
// configured. Adapters built by this factory already consult it; the
// accessor exists for callers pacing work of their own against the same
// budget.
func (f *Factory) Limiter() RateLimiter { return f.limiter }

// RetryPolicy returns the factory's configured retry policy.
func (f *Factory) RetryPolicy() RetryPolicy { return f.cfg.Retry }

// RequestTimeout returns the factory's configured per-attempt timeout.
func (f *Factory) RequestTimeout() time.Duration { return f.cfg.RequestTimeout }

// DisposeAll disposes every cached adapter and empties the cache. Intended
// for graceful shutdown; safe to call more than once.
func (f *Factory) DisposeAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	for key, entry := range f.services {
		if err := entry.adapter.Dispose(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(f.services, key)
	}
	return firstErr
}
