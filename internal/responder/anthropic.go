package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"guestdesk/internal/domain"
)

const (
	anthropicAPIURL       = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion   = "2023-06-01"
	anthropicDefaultModel = "claude-3-5-haiku-20241022"
	defaultMaxTokens      = 1024
	defaultHTTPTimeout    = 120 * time.Second
)

// Anthropic implements domain.Responder against the Anthropic messages API.
type Anthropic struct {
	apiKey string
	model  string
	client *http.Client
	logger *slog.Logger
}

type AnthropicConfig struct {
	APIKey string
	Model  string
	Logger *slog.Logger
}

func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	if cfg.Model == "" {
		cfg.Model = anthropicDefaultModel
	}
	return &Anthropic{
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		client: &http.Client{Timeout: defaultHTTPTimeout},
		logger: cfg.Logger,
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Healthy(ctx context.Context) error {
	if a.apiKey == "" {
		return fmt.Errorf("anthropic: no API key configured")
	}
	return nil
}

type anthropicRequest struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	System    string         `json:"system,omitempty"`
	Messages  []anthropicMsg `json:"messages"`
}

type anthropicMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (a *Anthropic) Generate(ctx context.Context, history []domain.Message) (string, error) {
	// Separate the system prompt; Anthropic takes it as a top-level field.
	var system string
	var msgs []anthropicMsg
	for _, m := range buildPrompt(history) {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		msgs = append(msgs, anthropicMsg{Role: m.Role, Content: m.Content})
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("anthropic: empty history")
	}

	body := anthropicRequest{
		Model:     a.model,
		MaxTokens: defaultMaxTokens,
		System:    system,
		Messages:  msgs,
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	buildReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", anthropicAPIURL, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", a.apiKey)
		req.Header.Set("anthropic-version", anthropicAPIVersion)
		return req, nil
	}

	resp, err := doWithRetry(ctx, a.client, buildReq, a.logger)
	if err != nil {
		return "", fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("anthropic %d: %s", resp.StatusCode, string(respBody))
	}

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}

	var parts []string
	for _, block := range out.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	text := strings.Join(parts, "")
	if text == "" {
		return "", fmt.Errorf("anthropic: empty completion")
	}
	return text, nil
}
