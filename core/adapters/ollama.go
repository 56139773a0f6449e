package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fritzprix/libr-agent-sub001/core"
)

// OllamaAdapter is the OpenAI-family adapter pointed at a local Ollama
// server's OpenAI-compatible /v1 endpoint, with ListModels overridden to
// query Ollama's native /api/tags endpoint instead of /v1/models.
type OllamaAdapter struct {
	*OpenAIAdapter

	baseURL    string
	httpClient *http.Client
	logger     core.Logger

	modelCache    core.ModelCache
	modelCacheKey string
}

// NewOllamaChat builds an adapter against a local Ollama server. baseURL is
// the server root (default http://localhost:11434); the chat path uses the
// OpenAI-compatible /v1 endpoint, which accepts any bearer value.
func NewOllamaChat(baseURL, model string, logger core.Logger) (core.Adapter, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	baseURL = strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")
	if logger == nil {
		logger = core.NoopLogger{}
	}

	inner, err := newOpenAIFamily(core.ProviderOllama, "ollama", baseURL+"/v1", model, logger)
	if err != nil {
		return nil, err
	}
	return &OllamaAdapter{
		OpenAIAdapter: inner,
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		logger:        logger,
		modelCache:    core.NewMemoryModelCache(time.Hour),
		modelCacheKey: "ollama:models",
	}, nil
}

// ApplyRuntime adopts the Factory's shared retry/timeout/pacing settings
// and, when a shared model cache is supplied, replaces the adapter's
// private in-memory one.
func (a *OllamaAdapter) ApplyRuntime(retry core.RetryPolicy, timeout time.Duration, limiter core.RateLimiter, models core.ModelCache) {
	a.OpenAIAdapter.ApplyRuntime(retry, timeout, limiter, nil)
	if models != nil {
		a.modelCache = models
	}
}

// ollamaTagsResponse mirrors the subset of /api/tags this adapter reads.
type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
		Size  int64  `json:"size"`
	} `json:"models"`
}

// ListModels queries the local host's /api/tags endpoint, caching the
// result for an hour.
func (a *OllamaAdapter) ListModels(ctx context.Context) ([]core.ModelInfo, error) {
	if cached, ok, _ := a.modelCache.Get(ctx, a.modelCacheKey); ok {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, core.Classify(err, nil)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, core.Classify(fmt.Errorf("failed to connect to ollama: %w", err), map[string]interface{}{"base_url": a.baseURL})
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, core.Classify(fmt.Errorf("ollama API returned status %d: %s", resp.StatusCode, string(body)), nil)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, core.Classify(fmt.Errorf("failed to decode ollama tags response: %w", err), nil)
	}

	models := make([]core.ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		if m.Name == "" {
			continue
		}
		models = append(models, core.ModelInfo{ID: m.Name, DisplayName: m.Name})
	}
	_ = a.modelCache.Set(ctx, a.modelCacheKey, models, time.Hour)
	return models, nil
}
