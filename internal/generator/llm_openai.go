package generator

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAILLM implements LLMClient using the official openai-go SDK (chat
// completions). Also covers OpenAI-compatible gateways via BaseURL.
type OpenAILLM struct {
	model string
	opts  []option.RequestOption
}

// NewOpenAILLM creates an OpenAI-backed client.
func NewOpenAILLM(cfg Settings) (*OpenAILLM, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAILLM{model: cfg.Model, opts: opts}, nil
}

func (o *OpenAILLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	client := openai.NewClient(o.opts...)
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// NewLLMClient builds the backend named by cfg.Provider.
func NewLLMClient(ctx context.Context, cfg Settings) (LLMClient, error) {
	switch cfg.Provider {
	case "gemini", "":
		return NewGeminiLLM(ctx, cfg)
	case "openai":
		return NewOpenAILLM(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
