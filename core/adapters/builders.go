package adapters

import (
	"os"

	"github.com/fritzprix/libr-agent-sub001/core"
)

// DefaultBuilders returns the builder registry the Factory consumes, one
// entry per supported ProviderTag. Two tags need an extra knob folded into
// the uniform AdapterBuilder shape: Fireworks reads its account id from
// FIREWORKS_ACCOUNT_ID (defaulting to the public "fireworks" account), and
// Ollama reuses the credential slot as the server base URL since a local
// Ollama server has no credential.
func DefaultBuilders() map[core.ProviderTag]core.AdapterBuilder {
	return map[core.ProviderTag]core.AdapterBuilder{
		core.ProviderOpenAI:    NewOpenAI,
		core.ProviderGroq:      NewGroq,
		core.ProviderCerebras:  NewCerebras,
		core.ProviderAnthropic: NewAnthropic,
		core.ProviderGemini:    NewGemini,
		core.ProviderFireworks: func(credential, model string, logger core.Logger) (core.Adapter, error) {
			account := os.Getenv("FIREWORKS_ACCOUNT_ID")
			if account == "" {
				account = "fireworks"
			}
			return NewFireworks(credential, account, model, logger)
		},
		core.ProviderOllama: func(baseURL, model string, logger core.Logger) (core.Adapter, error) {
			return NewOllamaChat(baseURL, model, logger)
		},
	}
}
