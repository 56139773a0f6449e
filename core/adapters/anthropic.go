package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/fritzprix/libr-agent-sub001/core"
	"github.com/fritzprix/libr-agent-sub001/core/assembler"
	"github.com/fritzprix/libr-agent-sub001/core/normalize"
	"github.com/fritzprix/libr-agent-sub001/core/toolschema"
)

// defaultAnthropicModels is the static ListModels fallback used when the
// live models.list call fails or returns no models.
var defaultAnthropicModels = []core.ModelInfo{
	{ID: "claude-opus-4-5", DisplayName: "Claude Opus 4.5", ContextSize: 200_000},
	{ID: "claude-sonnet-4-5", DisplayName: "Claude Sonnet 4.5", ContextSize: 200_000},
	{ID: "claude-haiku-4-5", DisplayName: "Claude Haiku 4.5", ContextSize: 200_000},
}

// AnthropicAdapter implements core.Adapter for Anthropic's Messages API.
// Streaming drives client.Messages.NewStreaming and switches over
// event.AsAny() for block start/delta/stop events; tool argument fragments
// are handed to the assembler, which emits each completed call exactly
// once.
type AnthropicAdapter struct {
	client  *anthropic.Client
	model   string
	logger  core.Logger
	runtime runtimeSettings

	mu     sync.Mutex
	cancel *core.CancelToken

	modelCache    core.ModelCache
	modelCacheKey string
}

// NewAnthropic builds an AnthropicAdapter. Matches the AdapterBuilder shape
// expected by core.Factory.
func NewAnthropic(credential, model string, logger core.Logger) (core.Adapter, error) {
	if credential == "" {
		return nil, fmt.Errorf("%w: anthropic credential is empty", core.ErrInvalidTool)
	}
	client := anthropic.NewClient(option.WithAPIKey(credential))
	if logger == nil {
		logger = core.NoopLogger{}
	}
	return &AnthropicAdapter{
		client:        &client,
		model:         model,
		logger:        logger,
		runtime:       defaultRuntimeSettings(),
		modelCache:    core.NewMemoryModelCache(time.Hour),
		modelCacheKey: "anthropic:models",
	}, nil
}

// ApplyRuntime adopts the Factory's shared retry/timeout/pacing settings
// and, when a shared model cache is supplied, replaces the adapter's
// private in-memory one.
func (a *AnthropicAdapter) ApplyRuntime(retry core.RetryPolicy, timeout time.Duration, limiter core.RateLimiter, models core.ModelCache) {
	a.runtime.apply(retry, timeout, limiter)
	if models != nil {
		a.modelCache = models
	}
}

func (a *AnthropicAdapter) StreamChat(ctx context.Context, messages []core.Message, opts core.StreamOptions, cancelToken *core.CancelToken) (<-chan core.Event, error) {
	if err := core.ValidateHistory(messages); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.cancel = cancelToken
	a.mu.Unlock()

	model := opts.Model
	if model == "" {
		model = a.model
	}

	sanitized := normalize.Normalize(messages, core.ProviderAnthropic)
	systemPrompt := opts.System
	if systemPrompt == "" {
		systemPrompt = normalize.ExtractSystemPrompt(messages)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokensOrDefault(opts.MaxTokens),
		Messages:  toAnthropicMessages(sanitized),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if opts.ThinkingEnabled {
		budget := opts.ThinkingBudget
		if budget <= 0 {
			budget = 10_000
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(budget))
	}
	if len(opts.Tools) > 0 {
		converted, err := toolschema.Convert(opts.Tools, core.ProviderAnthropic)
		if err != nil {
			return nil, err
		}
		params.Tools = toAnthropicToolParams(converted)
		if opts.ForcedToolUse {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
		}
	}

	if err := a.runtime.wait(ctx, string(core.ProviderAnthropic)); err != nil {
		return nil, core.Classify(err, map[string]interface{}{"model": model})
	}

	out := make(chan core.Event, 16)
	go runStreamWithRetry(ctx, a.runtime, out, map[string]interface{}{"model": model},
		func(attemptCtx context.Context, emitted *bool) error {
			return a.streamOnce(attemptCtx, params, cancelToken, out, emitted)
		})
	return out, nil
}

func maxTokensOrDefault(n int) int64 {
	if n <= 0 {
		return 4096
	}
	return int64(n)
}

// streamOnce runs a single streaming attempt; runStreamWithRetry owns the
// output channel and the terminal End event.
func (a *AnthropicAdapter) streamOnce(ctx context.Context, params anthropic.MessageNewParams, cancelToken *core.CancelToken, out chan<- core.Event, emitted *bool) error {
	if cancelToken.Cancelled() {
		return context.Canceled
	}

	asm := assembler.New(assembler.WithLogger(a.logger))
	stream := a.client.Messages.NewStreaming(ctx, params)

	send := func(ev core.Event) {
		out <- ev
		*emitted = true
	}

	for stream.Next() {
		if cancelToken.Cancelled() {
			asm.Reset()
			return context.Canceled
		}

		event := stream.Current()
		switch variant := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if tu, ok := variant.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				initial, _ := json.Marshal(tu.Input)
				asm.BlockStart(int(variant.Index), tu.ID, tu.Name, initial)
			}

		case anthropic.ContentBlockDeltaEvent:
			idx := int(variant.Index)
			switch delta := variant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				send(core.ContentEvent(idx, delta.Text))
			case anthropic.ThinkingDelta:
				send(core.ThinkingEvent(idx, delta.Thinking))
			case anthropic.SignatureDelta:
				send(core.ThinkingSignatureEvent(idx, delta.Signature))
			case anthropic.InputJSONDelta:
				if ev, ok := asm.ArgDelta(ctx, idx, delta.PartialJSON); ok {
					send(ev)
				}
			}

		case anthropic.ContentBlockStopEvent:
			if ev, ok := asm.BlockStop(ctx, int(variant.Index)); ok {
				send(ev)
			}

		case anthropic.MessageDeltaEvent:
			if variant.Usage.OutputTokens > 0 {
				send(core.UsageEvent(core.TokenUsage{CompletionTokens: int(variant.Usage.OutputTokens)}))
			}
		}
	}

	return stream.Err()
}

// toAnthropicMessages converts sanitized canonical messages into
// Anthropic's {role, content:[parts]} shape. Thinking parts come first,
// then text, then tool_use parts. Tool-role messages become user-role
// messages carrying a single tool_result part. UI-originated messages are
// coerced to user role.
func toAnthropicMessages(messages []core.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		if m.Role == core.RoleTool {
			out = append(out, anthropic.NewUserMessage(
				anthropic.ContentBlockParamUnion{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: m.ToolCallID,
						Content:   toolResultContent(m.Content),
					},
				},
			))
			continue
		}

		role := anthropic.MessageParamRoleUser
		if m.Role == core.RoleAssistant && m.Source != core.SourceUI {
			role = anthropic.MessageParamRoleAssistant
		}

		var blocks []anthropic.ContentBlockParamUnion
		if m.Thinking != nil {
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfThinking: &anthropic.ThinkingBlockParam{Thinking: m.Thinking.Text, Signature: m.Thinking.Signature},
			})
		}
		for _, part := range m.Content {
			if part.Kind == core.ContentText {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		}
		for _, tc := range m.ToolCalls {
			var input map[string]interface{}
			_ = json.Unmarshal(tc.Arguments, &input)
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfToolUse: &anthropic.ToolUseBlockParam{ID: tc.ID, Name: tc.Name, Input: input},
			})
		}

		if len(blocks) == 0 {
			continue
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}
	return out
}

// toolResultContent coerces tool-role content to a single concatenated
// text part; Anthropic does not accept arbitrary multimodal tool-result
// content.
func toolResultContent(parts []core.ContentPart) []anthropic.ToolResultBlockParamContentUnion {
	var sb strings.Builder
	for _, p := range parts {
		if p.Kind == core.ContentText {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(p.Text)
		}
	}
	return []anthropic.ToolResultBlockParamContentUnion{{OfText: &anthropic.TextBlockParam{Text: sb.String()}}}
}

func toAnthropicToolParams(converted []any) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(converted))
	for _, c := range converted {
		t, ok := c.(toolschema.AnthropicTool)
		if !ok {
			continue
		}
		var properties any
		if props, ok := t.InputSchema["properties"]; ok {
			properties = props
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: properties},
			},
		})
	}
	return out
}

func (a *AnthropicAdapter) ListModels(ctx context.Context) ([]core.ModelInfo, error) {
	if cached, ok, _ := a.modelCache.Get(ctx, a.modelCacheKey); ok {
		return cached, nil
	}

	page, err := a.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		a.logger.Warn(ctx, "anthropic: live model list failed, using static fallback", core.F("error", err.Error()))
		return defaultAnthropicModels, nil
	}

	models := make([]core.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, core.ModelInfo{ID: m.ID, DisplayName: m.DisplayName})
	}
	if len(models) == 0 {
		return defaultAnthropicModels, nil
	}
	_ = a.modelCache.Set(ctx, a.modelCacheKey, models, time.Hour)
	return models, nil
}

func (a *AnthropicAdapter) SampleText(ctx context.Context, prompt string, opts *core.SampleOptions) (string, error) {
	model := a.model
	var maxTokens int64 = 1024
	if opts != nil {
		if opts.Model != "" {
			model = opts.Model
		}
		if opts.MaxTokens > 0 {
			maxTokens = int64(opts.MaxTokens)
		}
	}

	if err := a.runtime.wait(ctx, string(core.ProviderAnthropic)); err != nil {
		return "", core.Classify(err, map[string]interface{}{"model": model})
	}

	res := core.RunWithRetryResult(ctx, a.runtime.retry, func(ctx context.Context) (string, error) {
		var text string
		err := core.WithTimeout(ctx, a.runtime.timeout, func(ctx context.Context) error {
			msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
				Model:     anthropic.Model(model),
				MaxTokens: maxTokens,
				Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
			})
			if err != nil {
				return err
			}
			var sb strings.Builder
			for _, block := range msg.Content {
				if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
					sb.WriteString(tb.Text)
				}
			}
			text = sb.String()
			return nil
		})
		if err != nil {
			return "", err
		}
		return text, nil
	})
	if !res.Success {
		return "", res.Err
	}
	return res.Value, nil
}

func (a *AnthropicAdapter) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel.Cancel()
	}
}

func (a *AnthropicAdapter) Dispose() error { return nil }
