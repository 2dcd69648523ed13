package responder

import (
	"context"
	"fmt"
	"log/slog"

	"guestdesk/internal/domain"

	openai "github.com/sashabaranov/go-openai"
)

const openaiDefaultModel = "gpt-4o-mini"

// OpenAI implements domain.Responder on any OpenAI-compatible chat
// completion endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
	apiKey string
	logger *slog.Logger
}

type OpenAIConfig struct {
	APIKey  string
	APIBase string // optional, for compatible endpoints
	Model   string
	Logger  *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		clientConfig.BaseURL = cfg.APIBase
	}
	if cfg.Model == "" {
		cfg.Model = openaiDefaultModel
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		apiKey: cfg.APIKey,
		logger: cfg.Logger,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Healthy(ctx context.Context) error {
	if o.apiKey == "" {
		return fmt.Errorf("openai: no API key configured")
	}
	return nil
}

func (o *OpenAI) Generate(ctx context.Context, history []domain.Message) (string, error) {
	prompt := buildPrompt(history)
	msgs := make([]openai.ChatCompletionMessage, 0, len(prompt))
	for _, m := range prompt {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
