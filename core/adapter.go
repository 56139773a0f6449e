package core

import (
	"context"
	"time"
)

// SampleOptions configures a single-shot, non-streaming text sample — the
// "just give me a string back" escape hatch a few call sites need (e.g.
// generating a conversation title) without going through the full chat
// streaming path.
type SampleOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// StreamOptions configures a StreamChat call. Tools are supplied as
// canonical ToolDescriptors and converted per adapter via the tool schema
// converter rather than carried as a pre-serialized provider blob.
type StreamOptions struct {
	Model       string
	System      string
	Temperature float64
	MaxTokens   int
	TopP        float64
	Stop        []string
	Tools       []ToolDescriptor
	// ForcedToolUse requires the model to call one of the supplied Tools
	// rather than answer in text. Ignored when Tools is empty or the
	// provider has no tool support.
	ForcedToolUse   bool
	ThinkingEnabled bool
	ThinkingBudget  int
}

// RuntimeAware is implemented by adapters that accept the Factory's shared
// runtime settings after construction: the retry policy and per-attempt
// timeout applied around every provider call, the rate limiter consulted
// before issuing a request, and the backend used to cache ListModels
// results. Any argument may be nil/zero, in which case the adapter keeps
// its own default.
type RuntimeAware interface {
	ApplyRuntime(retry RetryPolicy, timeout time.Duration, limiter RateLimiter, models ModelCache)
}

// ModelInfo is one entry in an adapter's model catalog.
type ModelInfo struct {
	ID          string
	DisplayName string
	ContextSize int
}

// Adapter is the uniform contract every provider family implements.
// StreamChat always streams: non-streaming callers simply drain the channel
// and concatenate content events, which keeps exactly one code path per
// adapter instead of two.
type Adapter interface {
	// StreamChat issues a chat request and streams Events back on the
	// returned channel. The channel is closed after an EventEnd is sent.
	// The caller owns cancellation via ctx and/or the supplied CancelToken.
	StreamChat(ctx context.Context, messages []Message, opts StreamOptions, cancel *CancelToken) (<-chan Event, error)

	// ListModels returns the provider's model catalog, cached where the
	// provider doesn't offer a cheap live lookup.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// SampleText issues a single non-streaming completion, for callers that
	// need a plain string and no tool calling (e.g. summarization).
	SampleText(ctx context.Context, prompt string, opts *SampleOptions) (string, error)

	// Cancel requests that any in-flight StreamChat call stop at the next
	// safe point. It does not block waiting for that to happen.
	Cancel()

	// Dispose releases any resources (HTTP clients, cached connections)
	// held by the adapter. Adapters must tolerate repeated Dispose calls.
	Dispose() error
}
