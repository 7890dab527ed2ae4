package providers

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"

	"github.com/trialscope/trialscope/internal/common"
)

// OllamaProvider serves chat and embeddings from a local Ollama host.
type OllamaProvider struct {
	llm   *ollama.LLM
	model string
}

func NewOllamaProvider(serverURL, model string) (*OllamaProvider, error) {
	if model == "" {
		model = "mistral"
	}
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init ollama: %w", err)
	}
	common.Logger().Info("llm: ollama provider configured", "model", model, "server", serverURL)
	return &OllamaProvider{llm: llm, model: model}, nil
}

func (o *OllamaProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if o.llm == nil {
		return "", fmt.Errorf("nil ollama client")
	}
	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		role := schema.ChatMessageTypeHuman
		switch msg.Role {
		case "system":
			role = schema.ChatMessageTypeSystem
		case "assistant":
			role = schema.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, msg.Content))
	}
	resp, err := o.llm.GenerateContent(ctx, content)
	if err != nil {
		common.Logger().Error("llm: ollama generation failed", "error", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Content, nil
}

func (o *OllamaProvider) Embed(ctx context.Context, input []string) ([][]float32, error) {
	if o.llm == nil {
		return nil, fmt.Errorf("nil ollama client")
	}
	if len(input) == 0 {
		return nil, nil
	}
	vectors, err := o.llm.CreateEmbedding(ctx, input)
	if err != nil {
		common.Logger().Error("llm: ollama embedding failed", "error", err)
		return nil, err
	}
	return vectors, nil
}

func (o *OllamaProvider) Name() string {
	return "ollama"
}
