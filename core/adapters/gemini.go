package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/fritzprix/libr-agent-sub001/core"
	"github.com/fritzprix/libr-agent-sub001/core/assembler"
	"github.com/fritzprix/libr-agent-sub001/core/normalize"
	"github.com/fritzprix/libr-agent-sub001/core/toolschema"
)

// GeminiAdapter implements core.Adapter for Gemini via
// google.golang.org/genai's unified client, driving
// Models.GenerateContentStream and emitting one core.Event per chunk.
//
// Gemini never assigns an id to a function call, so this adapter mints a
// random opaque id per call with uuid.New; deriving ids from the call's
// name and arguments would collide once a tool is called twice with the
// same input in one turn.
type GeminiAdapter struct {
	client  *genai.Client
	model   string
	runtime runtimeSettings

	mu     sync.Mutex
	cancel *core.CancelToken
}

func NewGemini(credential, model string, _ core.Logger) (core.Adapter, error) {
	if credential == "" {
		return nil, fmt.Errorf("%w: gemini credential is empty", core.ErrInvalidTool)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: credential})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	return &GeminiAdapter{client: client, model: model, runtime: defaultRuntimeSettings()}, nil
}

// ApplyRuntime adopts the Factory's shared retry/timeout/pacing settings.
func (a *GeminiAdapter) ApplyRuntime(retry core.RetryPolicy, timeout time.Duration, limiter core.RateLimiter, _ core.ModelCache) {
	a.runtime.apply(retry, timeout, limiter)
}

func (a *GeminiAdapter) StreamChat(ctx context.Context, messages []core.Message, opts core.StreamOptions, cancelToken *core.CancelToken) (<-chan core.Event, error) {
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

	sanitized := normalize.Normalize(messages, core.ProviderGemini)
	contents := a.convertMessages(sanitized)
	if opts.System == "" {
		opts.System = normalize.ExtractSystemPrompt(messages)
	}

	config, err := a.buildConfig(opts)
	if err != nil {
		return nil, err
	}

	if err := a.runtime.wait(ctx, string(core.ProviderGemini)); err != nil {
		return nil, core.Classify(err, map[string]interface{}{"model": model})
	}

	out := make(chan core.Event, 16)
	go runStreamWithRetry(ctx, a.runtime, out, map[string]interface{}{"model": model},
		func(attemptCtx context.Context, emitted *bool) error {
			return a.streamOnce(attemptCtx, model, contents, config, cancelToken, out, emitted, false)
		})
	return out, nil
}

func (a *GeminiAdapter) buildConfig(opts core.StreamOptions) (*genai.GenerateContentConfig, error) {
	config := &genai.GenerateContentConfig{}
	if opts.System != "" {
		config.SystemInstruction = genai.NewContentFromText(opts.System, genai.RoleUser)
	}
	if opts.Temperature > 0 {
		temp := float32(opts.Temperature)
		config.Temperature = &temp
	}
	if opts.TopP > 0 {
		topP := float32(opts.TopP)
		config.TopP = &topP
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if len(opts.Stop) > 0 {
		config.StopSequences = opts.Stop
	}
	if len(opts.Tools) > 0 {
		tools, err := a.convertTools(opts.Tools)
		if err != nil {
			return nil, err
		}
		config.Tools = tools
		if opts.ForcedToolUse {
			config.ToolConfig = &genai.ToolConfig{
				FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAny},
			}
		}
	}
	return config, nil
}

// convertMessages builds genai contents: messages carrying a ToolCallID
// become functionResponse content, assistant messages with ToolCalls become
// functionCall parts, everything else is plain text. The normalizer has
// already lowered tool-role messages to user role for Gemini, but
// ToolCallID survives the role rewrite so functionResponse construction
// still works here.
func (a *GeminiAdapter) convertMessages(messages []core.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch {
		case m.ToolCallID != "" && len(m.ToolCalls) == 0:
			responseData := map[string]interface{}{"result": textOfGemini(m)}
			var parsed map[string]interface{}
			if err := json.Unmarshal([]byte(textOfGemini(m)), &parsed); err == nil {
				responseData = parsed
			}
			contents = append(contents, genai.NewContentFromFunctionResponse(m.ToolCallID, responseData, genai.RoleUser))

		case m.Role == core.RoleAssistant && len(m.ToolCalls) > 0:
			var parts []*genai.Part
			if text := textOfGemini(m); text != "" {
				parts = append(parts, &genai.Part{Text: text})
			}
			for _, tc := range m.ToolCalls {
				var args map[string]interface{}
				_ = json.Unmarshal(tc.Arguments, &args)
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args}})
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})

		default:
			var role genai.Role = genai.RoleUser
			if m.Role == core.RoleAssistant {
				role = genai.RoleModel
			}
			contents = append(contents, genai.NewContentFromText(textOfGemini(m), role))
		}
	}
	return contents
}

func textOfGemini(m core.Message) string {
	var sb strings.Builder
	for _, p := range m.Content {
		if p.Kind == core.ContentText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func (a *GeminiAdapter) convertTools(tools []core.ToolDescriptor) ([]*genai.Tool, error) {
	converted, err := toolschema.Convert(tools, core.ProviderGemini)
	if err != nil {
		return nil, err
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(converted))
	for _, c := range converted {
		t, ok := c.(toolschema.GeminiTool)
		if !ok {
			continue
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGenaiSchema(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}, nil
}

func toGenaiSchema(s toolschema.GeminiSchema) *genai.Schema {
	out := &genai.Schema{Type: genaiType(s.Type), Description: s.Description, Enum: s.Enum, Required: s.Required}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	if s.Items != nil {
		out.Items = toGenaiSchema(*s.Items)
	}
	return out
}

func genaiType(t string) genai.Type {
	switch t {
	case "STRING":
		return genai.TypeString
	case "NUMBER":
		return genai.TypeNumber
	case "INTEGER":
		return genai.TypeInteger
	case "BOOLEAN":
		return genai.TypeBoolean
	case "ARRAY":
		return genai.TypeArray
	case "OBJECT":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// streamOnce consumes Models.GenerateContentStream's range-over-func
// iterator for a single attempt; runStreamWithRetry owns the output channel
// and the terminal End event. Gemini delivers each functionCall whole
// within a single chunk (no incremental argument fragments), so every call
// is routed through the Assembler's CompleteOneShot rather than
// BlockStart/ArgDelta, keeping the yield-at-most-once bookkeeping uniform
// with the incremental adapters. toolsDisabledRetry guards the single
// retry-without-tools allowed on MALFORMED_FUNCTION_CALL.
func (a *GeminiAdapter) streamOnce(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig, cancelToken *core.CancelToken, out chan<- core.Event, emitted *bool, toolsDisabledRetry bool) error {
	if cancelToken.Cancelled() {
		return context.Canceled
	}

	asm := assembler.New()
	blockIndex := 0
	malformed := false
	var usage *core.TokenUsage

	send := func(ev core.Event) {
		out <- ev
		*emitted = true
	}

	for resp, err := range a.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if cancelToken.Cancelled() {
			asm.Reset()
			return context.Canceled
		}
		if err != nil {
			return a.wrapGeminiError(err)
		}
		if resp == nil || len(resp.Candidates) == 0 {
			continue
		}

		candidate := resp.Candidates[0]
		if candidate.FinishReason == genai.FinishReasonMalformedFunctionCall {
			malformed = true
			continue
		}
		if candidate.Content == nil {
			continue
		}

		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				send(core.ContentEvent(blockIndex, part.Text))
			}
			if part.FunctionCall != nil {
				args, marshalErr := json.Marshal(part.FunctionCall.Args)
				if marshalErr != nil {
					args = []byte("{}")
				}
				id := "gemini_" + uuid.New().String()
				if ev, ok := asm.CompleteOneShot(blockIndex, id, part.FunctionCall.Name, args); ok {
					send(ev)
				}
				blockIndex++
			}
		}

		if resp.UsageMetadata != nil {
			usage = &core.TokenUsage{
				PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
			}
		}
	}

	if malformed && !*emitted && !toolsDisabledRetry {
		retryConfig := *config
		retryConfig.Tools = nil
		retryConfig.ToolConfig = nil
		return a.streamOnce(ctx, model, contents, &retryConfig, cancelToken, out, emitted, true)
	}
	if malformed && !*emitted {
		return fmt.Errorf("malformed function call")
	}

	if usage != nil {
		send(core.UsageEvent(*usage))
	}
	return nil
}

// wrapGeminiError surfaces a googleapi.Error's status code in the message
// so classification can key off it.
func (a *GeminiAdapter) wrapGeminiError(err error) error {
	if apiErr, ok := err.(*googleapi.Error); ok {
		return fmt.Errorf("gemini API error (%d): %s", apiErr.Code, apiErr.Message)
	}
	return err
}

func (a *GeminiAdapter) classifyGeminiError(err error, model string) *core.ClassifiedError {
	return core.Classify(a.wrapGeminiError(err), map[string]interface{}{"model": model})
}

func (a *GeminiAdapter) ListModels(ctx context.Context) ([]core.ModelInfo, error) {
	var out []core.ModelInfo
	for model, err := range a.client.Models.All(ctx) {
		if err != nil {
			return nil, a.classifyGeminiError(err, "")
		}
		out = append(out, core.ModelInfo{ID: model.Name, DisplayName: model.DisplayName})
	}
	return out, nil
}

func (a *GeminiAdapter) SampleText(ctx context.Context, prompt string, opts *core.SampleOptions) (string, error) {
	model := a.model
	config := &genai.GenerateContentConfig{}
	if opts != nil {
		if opts.Model != "" {
			model = opts.Model
		}
		if opts.Temperature > 0 {
			temp := float32(opts.Temperature)
			config.Temperature = &temp
		}
		if opts.MaxTokens > 0 {
			config.MaxOutputTokens = int32(opts.MaxTokens)
		}
	}

	if err := a.runtime.wait(ctx, string(core.ProviderGemini)); err != nil {
		return "", core.Classify(err, map[string]interface{}{"model": model})
	}

	res := core.RunWithRetryResult(ctx, a.runtime.retry, func(ctx context.Context) (string, error) {
		var text string
		err := core.WithTimeout(ctx, a.runtime.timeout, func(ctx context.Context) error {
			resp, err := a.client.Models.GenerateContent(ctx, model, []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, config)
			if err != nil {
				return a.wrapGeminiError(err)
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				return nil
			}
			var sb strings.Builder
			for _, part := range resp.Candidates[0].Content.Parts {
				sb.WriteString(part.Text)
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

func (a *GeminiAdapter) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel.Cancel()
	}
}

func (a *GeminiAdapter) Dispose() error { return nil }
