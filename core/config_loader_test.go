package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runtime.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRuntimeConfig(t *testing.T) {
	path := writeConfigFile(t, `
service_ttl: 30m
request_timeout: 45s
retry:
  max_attempts: 3
  base_delay: 2s
  exponential_backoff: true
rate_limit:
  enabled: true
  requests_per_second: 5
  burst_size: 10
`)

	cfg, err := LoadRuntimeConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.ServiceTTL)
	assert.Equal(t, 45*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.True(t, cfg.Retry.ExponentialBack)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 5.0, cfg.RateLimit.RequestsPerSecond)
}

func TestLoadRuntimeConfigKeepsDefaultsForOmittedFields(t *testing.T) {
	path := writeConfigFile(t, `request_timeout: 10s`)

	cfg, err := LoadRuntimeConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, time.Hour, cfg.ServiceTTL, "omitted field keeps its default")
}

func TestLoadRuntimeConfigModelCacheBackend(t *testing.T) {
	path := writeConfigFile(t, `
model_cache:
  backend: redis
  redis_addr: localhost:6379
  ttl: 10m
`)

	cfg, err := LoadRuntimeConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.ModelCache.Backend)
	assert.Equal(t, "localhost:6379", cfg.ModelCache.RedisAddr)
	assert.Equal(t, 10*time.Minute, cfg.ModelCache.TTL)
}

func TestLoadRuntimeConfigRejectsUnknownModelCacheBackend(t *testing.T) {
	path := writeConfigFile(t, `
model_cache:
  backend: memcached
`)
	_, err := LoadRuntimeConfig(path)
	assert.Error(t, err)
}

func TestLoadRuntimeConfigRejectsRedisWithoutAddr(t *testing.T) {
	path := writeConfigFile(t, `
model_cache:
  backend: redis
  redis_addr: ""
`)
	_, err := LoadRuntimeConfig(path)
	assert.Error(t, err)
}

func TestLoadRuntimeConfigRejectsInvalid(t *testing.T) {
	path := writeConfigFile(t, `
rate_limit:
  enabled: true
  requests_per_second: 0
`)
	_, err := LoadRuntimeConfig(path)
	assert.Error(t, err)
}

func TestLoadRuntimeConfigMissingFile(t *testing.T) {
	_, err := LoadRuntimeConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRuntimeConfigRejectsBadYAML(t *testing.T) {
	path := writeConfigFile(t, "service_ttl: [not a duration")
	_, err := LoadRuntimeConfig(path)
	assert.Error(t, err)
}
