package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/fritzprix/libr-agent-sub001/core"
	"github.com/fritzprix/libr-agent-sub001/core/adapters"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	ctx := context.Background()
	logger := core.NewSlogAdapter(slog.Default())

	// runtime.yaml can tune retries, timeouts, pacing and the model-cache
	// backend; absent, the defaults apply
	cfg := core.DefaultRuntimeConfig()
	if loaded, err := core.LoadRuntimeConfig("runtime.yaml"); err == nil {
		cfg = loaded
	} else if !os.IsNotExist(errors.Unwrap(err)) {
		log.Printf("Warning: ignoring runtime.yaml: %v", err)
	}

	factory := core.NewFactory(adapters.DefaultBuilders(),
		core.WithLogger(logger), core.WithRuntimeConfig(cfg))
	defer factory.DisposeAll(ctx)

	provider, credential, model := pickProvider()
	service := factory.GetService(provider, credential, model)

	history := []core.Message{
		{ID: "m1", Role: core.RoleSystem, Content: []core.ContentPart{core.Text("You are a terse assistant.")}},
		{ID: "m2", Role: core.RoleUser, Content: []core.ContentPart{core.Text("What is the capital of Vietnam?")}},
	}

	tools := []core.ToolDescriptor{{
		Name:        "get_weather",
		Description: "Get the current weather for a city",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"city": map[string]interface{}{"type": "string"},
			},
			"required": []interface{}{"city"},
		},
	}}

	cancel := core.NewCancelToken()
	events, err := service.StreamChat(ctx, history, core.StreamOptions{Model: model, Tools: tools}, cancel)
	if err != nil {
		log.Fatalf("stream_chat failed: %v", err)
	}

	for ev := range events {
		switch ev.Kind {
		case core.EventContent:
			fmt.Print(ev.Delta)
		case core.EventThinking:
			fmt.Printf("[thinking] %s", ev.Delta)
		case core.EventToolCall:
			fmt.Printf("\n[tool call] %s(%s)\n", ev.ToolCall.Name, string(ev.ToolCall.Arguments))
		case core.EventUsageHint:
			fmt.Printf("\n[usage] %d tokens\n", ev.Usage.TotalTokens)
		case core.EventEnd:
			if ev.Err != nil {
				fmt.Printf("\n[error] %v\n", ev.Err)
			} else {
				fmt.Println("\n[done]")
			}
		}
	}
}

// pickProvider selects the first provider with a credential in the
// environment, falling back to a local Ollama server.
func pickProvider() (core.ProviderTag, string, string) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return core.ProviderOpenAI, key, "gpt-4o-mini"
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return core.ProviderAnthropic, key, "claude-sonnet-4-5"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return core.ProviderGemini, key, "gemini-2.0-flash"
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		return core.ProviderGroq, key, "llama-3.3-70b-versatile"
	}
	return core.ProviderOllama, "", "llama3.2"
}
