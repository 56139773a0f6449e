package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// tokenBucketLimiter implements RateLimiter with golang.org/x/time/rate:
// either one global bucket, or one bucket per key with a cleanup goroutine
// reaping idle keys.
type tokenBucketLimiter struct {
	config RateLimitConfig

	globalLimiter *rate.Limiter
	globalStats   *rateLimitStats

	perKeyLimiters map[string]*perKeyLimiter
	mu             sync.RWMutex

	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

type perKeyLimiter struct {
	limiter    *rate.Limiter
	stats      *rateLimitStats
	lastAccess time.Time
	mu         sync.RWMutex
}

type rateLimitStats struct {
	allowed       int64
	denied        int64
	waited        int64
	totalWaitTime time.Duration
	lastUpdate    time.Time
	mu            sync.RWMutex
}

// NewRateLimiter builds a RateLimiter from config, validating the fields
// that would otherwise panic inside golang.org/x/time/rate.
func NewRateLimiter(config RateLimitConfig) (RateLimiter, error) {
	if config.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("RequestsPerSecond must be positive, got %f", config.RequestsPerSecond)
	}
	if config.BurstSize < 1 {
		return nil, fmt.Errorf("BurstSize must be >= 1, got %d", config.BurstSize)
	}
	if config.KeyTimeout == 0 {
		config.KeyTimeout = 5 * time.Minute
	}
	if config.WaitTimeout == 0 {
		config.WaitTimeout = 30 * time.Second
	}

	limiter := &tokenBucketLimiter{
		config:         config,
		globalStats:    &rateLimitStats{lastUpdate: time.Now()},
		perKeyLimiters: make(map[string]*perKeyLimiter),
		stopCleanup:    make(chan struct{}),
	}

	if !config.PerKey {
		limiter.globalLimiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.BurstSize)
	} else {
		go limiter.cleanupUnusedLimiters()
	}

	return limiter, nil
}

func (tb *tokenBucketLimiter) Allow(key string) bool {
	limiter, stats := tb.getLimiterAndStats(key)
	allowed := limiter.Allow()

	stats.mu.Lock()
	if allowed {
		stats.allowed++
	} else {
		stats.denied++
	}
	stats.lastUpdate = time.Now()
	stats.mu.Unlock()

	if tb.config.PerKey && key != "" {
		tb.updateLastAccess(key)
	}
	return allowed
}

func (tb *tokenBucketLimiter) Wait(ctx context.Context, key string) error {
	limiter, stats := tb.getLimiterAndStats(key)

	if tb.config.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tb.config.WaitTimeout)
		defer cancel()
	}

	start := time.Now()
	err := limiter.Wait(ctx)
	waitDuration := time.Since(start)

	stats.mu.Lock()
	if err == nil {
		stats.waited++
		stats.totalWaitTime += waitDuration
		stats.allowed++
	}
	stats.lastUpdate = time.Now()
	stats.mu.Unlock()

	if tb.config.PerKey && key != "" {
		tb.updateLastAccess(key)
	}
	return err
}

func (tb *tokenBucketLimiter) Stats(key string) RateLimitStats {
	limiter, stats := tb.getLimiterAndStats(key)

	stats.mu.RLock()
	defer stats.mu.RUnlock()

	result := RateLimitStats{
		Allowed:         stats.allowed,
		Denied:          stats.denied,
		Waited:          stats.waited,
		TotalWaitTime:   stats.totalWaitTime,
		LastUpdate:      stats.lastUpdate,
		AvailableTokens: float64(limiter.Tokens()),
	}
	if tb.config.PerKey {
		tb.mu.RLock()
		result.ActiveKeys = len(tb.perKeyLimiters)
		tb.mu.RUnlock()
	}
	return result
}

func (tb *tokenBucketLimiter) getLimiterAndStats(key string) (*rate.Limiter, *rateLimitStats) {
	if !tb.config.PerKey {
		return tb.globalLimiter, tb.globalStats
	}

	tb.mu.RLock()
	pkl, exists := tb.perKeyLimiters[key]
	tb.mu.RUnlock()
	if exists {
		return pkl.limiter, pkl.stats
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()
	if pkl, exists := tb.perKeyLimiters[key]; exists {
		return pkl.limiter, pkl.stats
	}

	pkl = &perKeyLimiter{
		limiter:    rate.NewLimiter(rate.Limit(tb.config.RequestsPerSecond), tb.config.BurstSize),
		stats:      &rateLimitStats{lastUpdate: time.Now()},
		lastAccess: time.Now(),
	}
	tb.perKeyLimiters[key] = pkl
	return pkl.limiter, pkl.stats
}

func (tb *tokenBucketLimiter) updateLastAccess(key string) {
	tb.mu.RLock()
	pkl, exists := tb.perKeyLimiters[key]
	tb.mu.RUnlock()
	if exists {
		pkl.mu.Lock()
		pkl.lastAccess = time.Now()
		pkl.mu.Unlock()
	}
}

func (tb *tokenBucketLimiter) cleanupUnusedLimiters() {
	ticker := time.NewTicker(tb.config.KeyTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tb.performCleanup()
		case <-tb.stopCleanup:
			return
		}
	}
}

func (tb *tokenBucketLimiter) performCleanup() {
	now := time.Now()
	var stale []string

	tb.mu.RLock()
	for key, pkl := range tb.perKeyLimiters {
		pkl.mu.RLock()
		if now.Sub(pkl.lastAccess) > tb.config.KeyTimeout {
			stale = append(stale, key)
		}
		pkl.mu.RUnlock()
	}
	tb.mu.RUnlock()

	if len(stale) == 0 {
		return
	}
	tb.mu.Lock()
	for _, key := range stale {
		delete(tb.perKeyLimiters, key)
	}
	tb.mu.Unlock()
}

// Stop ends the per-key cleanup goroutine. Safe to call more than once.
func (tb *tokenBucketLimiter) Stop() {
	tb.cleanupOnce.Do(func() { close(tb.stopCleanup) })
}
