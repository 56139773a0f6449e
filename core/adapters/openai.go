package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/fritzprix/libr-agent-sub001/core"
	"github.com/fritzprix/libr-agent-sub001/core/assembler"
	"github.com/fritzprix/libr-agent-sub001/core/normalize"
	"github.com/fritzprix/libr-agent-sub001/core/toolschema"
)

const fireworksBaseURL = "https://api.fireworks.ai/inference/v1"

// OpenAIAdapter implements core.Adapter for the OpenAI structural family:
// OpenAI, Groq, Cerebras, Fireworks and Ollama's /v1/chat/completions
// endpoint, all of which speak the same wire shape. Per-provider behavior
// (base URL, Fireworks account prefix, Cerebras schema sanitization,
// Ollama's absent tool support) is threaded through the provider tag set at
// construction.
type OpenAIAdapter struct {
	client   *openai.Client
	provider core.ProviderTag
	model    string
	account  string // Fireworks account id, for unqualified model name prefixing
	logger   core.Logger
	runtime  runtimeSettings

	mu     sync.Mutex
	cancel *core.CancelToken
}

func newOpenAIFamily(provider core.ProviderTag, credential, baseURL, model string, logger core.Logger) (*OpenAIAdapter, error) {
	if credential == "" && provider != core.ProviderOllama {
		return nil, fmt.Errorf("%w: %s credential is empty", core.ErrInvalidTool, provider)
	}
	if logger == nil {
		logger = core.NoopLogger{}
	}
	opts := []option.RequestOption{option.WithAPIKey(credential)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIAdapter{
		client:   &client,
		provider: provider,
		model:    model,
		logger:   logger,
		runtime:  defaultRuntimeSettings(),
	}, nil
}

// ApplyRuntime adopts the Factory's shared retry/timeout/pacing settings.
func (a *OpenAIAdapter) ApplyRuntime(retry core.RetryPolicy, timeout time.Duration, limiter core.RateLimiter, _ core.ModelCache) {
	a.runtime.apply(retry, timeout, limiter)
}

// NewOpenAI builds an adapter against api.openai.com.
func NewOpenAI(credential, model string, logger core.Logger) (core.Adapter, error) {
	return newOpenAIFamily(core.ProviderOpenAI, credential, "", model, logger)
}

// NewGroq builds an adapter against Groq's OpenAI-compatible endpoint.
func NewGroq(credential, model string, logger core.Logger) (core.Adapter, error) {
	return newOpenAIFamily(core.ProviderGroq, credential, "https://api.groq.com/openai/v1", model, logger)
}

// NewCerebras builds an adapter against Cerebras's OpenAI-compatible
// endpoint. Tool schemas handed to this adapter are sanitized in
// toolschema.Convert.
func NewCerebras(credential, model string, logger core.Logger) (core.Adapter, error) {
	return newOpenAIFamily(core.ProviderCerebras, credential, "https://api.cerebras.ai/v1", model, logger)
}

// NewFireworks builds an adapter against Fireworks's OpenAI-compatible
// endpoint. account is the Fireworks account id used to qualify bare model
// names (e.g. "llama-v3p1-8b" becomes
// "accounts/<account>/models/llama-v3p1-8b").
func NewFireworks(credential, account, model string, logger core.Logger) (core.Adapter, error) {
	a, err := newOpenAIFamily(core.ProviderFireworks, credential, fireworksBaseURL, model, logger)
	if err != nil {
		return nil, err
	}
	a.account = account
	a.model = qualifyFireworksModel(account, model)
	return a, nil
}

func qualifyFireworksModel(account, model string) string {
	if account == "" || strings.HasPrefix(model, "accounts/") {
		return model
	}
	return fmt.Sprintf("accounts/%s/models/%s", account, model)
}

func (a *OpenAIAdapter) StreamChat(ctx context.Context, messages []core.Message, opts core.StreamOptions, cancelToken *core.CancelToken) (<-chan core.Event, error) {
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
	if a.provider == core.ProviderFireworks {
		model = qualifyFireworksModel(a.account, model)
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: a.convertMessages(messages, opts.System),
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.TopP > 0 {
		params.TopP = openai.Float(opts.TopP)
	}
	if len(opts.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: opts.Stop}
	}

	if len(opts.Tools) > 0 {
		if a.provider == core.ProviderOllama {
			a.logger.Info(ctx, "ollama: tool calling not supported by this adapter, dropping tools",
				core.F("tool_count", len(opts.Tools)))
		} else {
			converted, err := toolschema.Convert(opts.Tools, a.provider)
			if err != nil {
				return nil, err
			}
			tools, err := toChatCompletionTools(converted)
			if err != nil {
				return nil, err
			}
			params.Tools = tools
			if opts.ForcedToolUse {
				params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("required")}
			}
		}
	}

	if err := a.runtime.wait(ctx, string(a.provider)); err != nil {
		return nil, core.Classify(err, map[string]interface{}{"model": model})
	}

	out := make(chan core.Event, 16)
	go runStreamWithRetry(ctx, a.runtime, out, map[string]interface{}{"model": model},
		func(attemptCtx context.Context, emitted *bool) error {
			return a.streamOnce(attemptCtx, params, cancelToken, out, emitted)
		})
	return out, nil
}

func (a *OpenAIAdapter) convertMessages(messages []core.Message, systemOverride string) []openai.ChatCompletionMessageParamUnion {
	sanitized := normalize.Normalize(messages, a.provider)
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(sanitized)+1)

	if systemOverride != "" {
		out = append(out, openai.SystemMessage(systemOverride))
	}

	for _, m := range sanitized {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(textOf(m)))
		case core.RoleUser:
			out = append(out, openai.UserMessage(textOf(m)))
		case core.RoleTool:
			out = append(out, openai.ToolMessage(textOf(m), m.ToolCallID))
		case core.RoleAssistant:
			out = append(out, assistantMessage(m))
		}
	}
	return out
}

func textOf(m core.Message) string {
	var sb strings.Builder
	for _, p := range m.Content {
		if p.Kind == core.ContentText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func assistantMessage(m core.Message) openai.ChatCompletionMessageParamUnion {
	param := openai.ChatCompletionAssistantMessageParam{}
	if text := textOf(m); text != "" {
		param.Content.OfString = openai.String(text)
	}
	for _, tc := range m.ToolCalls {
		param.ToolCalls = append(param.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &param}
}

func toChatCompletionTools(converted []any) ([]openai.ChatCompletionToolUnionParam, error) {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(converted))
	for _, c := range converted {
		t, ok := c.(toolschema.OpenAIFunctionTool)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected converted tool shape %T", core.ErrInvalidTool, c)
		}
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Function.Name,
			Description: openai.String(t.Function.Description),
			Parameters:  openai.FunctionParameters(t.Function.Parameters),
		}))
	}
	return out, nil
}

// streamOnce runs a single streaming attempt, feeding tool-call arguments
// into the shared Assembler and translating content/usage deltas directly
// into core.Event; runStreamWithRetry owns the output channel and the
// terminal End event. Per-block Assembler bookkeeping keeps multiple
// parallel tool calls independent.
func (a *OpenAIAdapter) streamOnce(ctx context.Context, params openai.ChatCompletionNewParams, cancelToken *core.CancelToken, out chan<- core.Event, emitted *bool) error {
	if cancelToken.Cancelled() {
		return context.Canceled
	}

	asm := assembler.New()
	stream := a.client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}

	started := []int{}
	isStarted := map[int]bool{}

	send := func(ev core.Event) {
		out <- ev
		*emitted = true
	}

	for stream.Next() {
		if cancelToken.Cancelled() {
			asm.Reset()
			return context.Canceled
		}

		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if delta.Content != "" {
			send(core.ContentEvent(0, delta.Content))
		}

		// Groq and Fireworks surface reasoning traces as a non-standard
		// "reasoning" field on the delta
		if field, ok := delta.JSON.ExtraFields["reasoning"]; ok {
			var reasoning string
			if err := json.Unmarshal([]byte(field.Raw()), &reasoning); err == nil && reasoning != "" {
				send(core.ThinkingEvent(0, reasoning))
			}
		}

		for _, tc := range delta.ToolCalls {
			// content block 0 is the text; tool-call blocks follow
			blockIndex := int(tc.Index) + 1
			// the first fragment of a call carries its id and name; later
			// fragments carry argument pieces only
			if !isStarted[blockIndex] && (tc.ID != "" || tc.Function.Name != "") {
				asm.BlockStart(blockIndex, tc.ID, tc.Function.Name, nil)
				isStarted[blockIndex] = true
				started = append(started, blockIndex)
			}
			if tc.Function.Arguments == "" {
				continue
			}
			if ev, ok := asm.ArgDelta(ctx, blockIndex, tc.Function.Arguments); ok {
				send(ev)
			}
		}
	}

	if err := stream.Err(); err != nil {
		return err
	}

	// finalize any call whose arguments only became parseable at stream end
	for _, blockIndex := range started {
		if ev, ok := asm.BlockStop(ctx, blockIndex); ok {
			send(ev)
		}
	}

	if usage := acc.Usage; usage.TotalTokens > 0 {
		send(core.UsageEvent(core.TokenUsage{
			PromptTokens:     int(usage.PromptTokens),
			CompletionTokens: int(usage.CompletionTokens),
			TotalTokens:      int(usage.TotalTokens),
		}))
	}

	return nil
}

func (a *OpenAIAdapter) ListModels(ctx context.Context) ([]core.ModelInfo, error) {
	page, err := a.client.Models.List(ctx)
	if err != nil {
		return nil, core.Classify(err, map[string]interface{}{"provider": string(a.provider)})
	}
	out := make([]core.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		out = append(out, core.ModelInfo{ID: m.ID})
	}
	return out, nil
}

func (a *OpenAIAdapter) SampleText(ctx context.Context, prompt string, opts *core.SampleOptions) (string, error) {
	model := a.model
	if opts != nil && opts.Model != "" {
		model = opts.Model
	}
	if a.provider == core.ProviderFireworks {
		model = qualifyFireworksModel(a.account, model)
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	}
	if opts != nil && opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts != nil && opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}

	if err := a.runtime.wait(ctx, string(a.provider)); err != nil {
		return "", core.Classify(err, map[string]interface{}{"model": model})
	}

	res := core.RunWithRetryResult(ctx, a.runtime.retry, func(ctx context.Context) (string, error) {
		var text string
		err := core.WithTimeout(ctx, a.runtime.timeout, func(ctx context.Context) error {
			completion, err := a.client.Chat.Completions.New(ctx, params)
			if err != nil {
				return err
			}
			if len(completion.Choices) > 0 {
				text = completion.Choices[0].Message.Content
			}
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

func (a *OpenAIAdapter) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel.Cancel()
	}
}

func (a *OpenAIAdapter) Dispose() error { return nil }
