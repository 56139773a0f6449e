package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisModelCache is a Redis-backed ModelCache for deployments that want
// the model catalog shared across processes. Values are JSON-encoded
// []ModelInfo stored under a prefixed key.
type RedisModelCache struct {
	client     redis.UniversalClient
	prefix     string
	defaultTTL time.Duration
}

// RedisModelCacheOptions configures RedisModelCache's connection.
type RedisModelCacheOptions struct {
	Addrs    []string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	KeyPrefix  string
	DefaultTTL time.Duration
}

// NewRedisModelCache builds a RedisModelCache with simple single-node
// configuration.
func NewRedisModelCache(addr, password string, db int, defaultTTL time.Duration) (*RedisModelCache, error) {
	return NewRedisModelCacheWithOptions(&RedisModelCacheOptions{
		Addrs:      []string{addr},
		Password:   password,
		DB:         db,
		DefaultTTL: defaultTTL,
	})
}

// NewRedisModelCacheWithOptions builds a RedisModelCache from full options,
// including cluster mode when more than one address is given.
func NewRedisModelCacheWithOptions(opts *RedisModelCacheOptions) (*RedisModelCache, error) {
	if opts == nil {
		return nil, fmt.Errorf("redis model cache options cannot be nil")
	}
	if len(opts.Addrs) == 0 {
		opts.Addrs = []string{"localhost:6379"}
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = 10
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = 5
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "chatcore"
	}
	if opts.DefaultTTL == 0 {
		opts.DefaultTTL = time.Hour
	}

	var client redis.UniversalClient
	if len(opts.Addrs) == 1 {
		client = redis.NewClient(&redis.Options{
			Addr:         opts.Addrs[0],
			Password:     opts.Password,
			DB:           opts.DB,
			PoolSize:     opts.PoolSize,
			MinIdleConns: opts.MinIdleConns,
			DialTimeout:  opts.DialTimeout,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		})
	} else {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        opts.Addrs,
			Password:     opts.Password,
			PoolSize:     opts.PoolSize,
			MinIdleConns: opts.MinIdleConns,
			DialTimeout:  opts.DialTimeout,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisModelCache{client: client, prefix: opts.KeyPrefix, defaultTTL: opts.DefaultTTL}, nil
}

func (c *RedisModelCache) makeKey(key string) string {
	return fmt.Sprintf("%s:models:%s", c.prefix, key)
}

func (c *RedisModelCache) Get(ctx context.Context, key string) ([]ModelInfo, bool, error) {
	val, err := c.client.Get(ctx, c.makeKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var models []ModelInfo
	if err := json.Unmarshal(val, &models); err != nil {
		return nil, false, fmt.Errorf("redis model cache value corrupted: %w", err)
	}
	return models, true, nil
}

func (c *RedisModelCache) Set(ctx context.Context, key string, models []ModelInfo, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(models)
	if err != nil {
		return fmt.Errorf("failed to marshal models: %w", err)
	}
	if err := c.client.Set(ctx, c.makeKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *RedisModelCache) Clear(ctx context.Context) error {
	pattern := c.makeKey("*")
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis delete batch failed: %w", err)
		}
	}
	return nil
}

// Close closes the underlying Redis connection.
func (c *RedisModelCache) Close() error { return c.client.Close() }
