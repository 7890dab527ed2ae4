package llm

import (
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/trialscope/trialscope/internal/common"
	"github.com/trialscope/trialscope/internal/llm/providers"
)

type Message = providers.Message

type Provider = providers.Provider

// NewProvider selects a provider from the environment: OpenAI when an API
// key is set, otherwise a local Ollama host when one is configured, and a
// deterministic stub as the last resort.
func NewProvider() Provider {
	logger := common.Logger()
	if apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); apiKey != "" {
		cfg := openai.DefaultConfig(apiKey)
		if endpoint := strings.TrimSpace(os.Getenv("OPENAI_ENDPOINT")); endpoint != "" {
			logger.Info("llm: using custom OpenAI endpoint", "endpoint", endpoint)
			cfg.BaseURL = endpoint
		}
		logger.Info("llm: OpenAI provider selected")
		return providers.NewOpenAIProvider(openai.NewClientWithConfig(cfg))
	}
	serverURL := strings.TrimSpace(os.Getenv("OLLAMA_HOST"))
	model := strings.TrimSpace(os.Getenv("OLLAMA_MODEL"))
	if serverURL != "" || model != "" {
		provider, err := providers.NewOllamaProvider(serverURL, model)
		if err == nil {
			logger.Info("llm: ollama provider selected")
			return provider
		}
		logger.Warn("llm: ollama initialization failed; falling back to local provider", "error", err)
	}
	logger.Warn("llm: no model host configured; using local provider")
	return providers.NewLocalProvider()
}
