package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenRouterConfig configures the OpenRouter provider.
type OpenRouterConfig struct {
	APIKey       string
	Model        string
	BaseURL      string
	SystemPrompt string
	Timeout      time.Duration
}

// OpenRouterProvider talks to the OpenRouter chat completions API.
// The API is OpenAI-compatible, so BaseURL can point at any compatible
// endpoint for self-hosted or alternative providers.
type OpenRouterProvider struct {
	config OpenRouterConfig
	client *http.Client
}

// NewOpenRouter creates a provider from the configuration.
func NewOpenRouter(config OpenRouterConfig) (*OpenRouterProvider, error) {
	if config.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if config.Model == "" {
		return nil, fmt.Errorf("ai: model is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://openrouter.ai/api/v1"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &OpenRouterProvider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete implements Provider.
func (p *OpenRouterProvider) Complete(ctx context.Context, messages []Message) (string, error) {
	if p.config.SystemPrompt != "" {
		messages = append([]Message{{Role: "system", Content: p.config.SystemPrompt}}, messages...)
	}

	body, err := json.Marshal(chatRequest{
		Model:    p.config.Model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("ai: failed to encode request: %w", err)
	}

	url := strings.TrimSuffix(p.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ai: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := mapStatusError(resp.StatusCode); err != nil {
		return "", err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("ai: failed to read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("ai: failed to decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("ai: upstream error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("ai: empty response from model %s", p.config.Model)
	}

	return parsed.Choices[0].Message.Content, nil
}

// TestConnection implements Provider with a one-token completion.
func (p *OpenRouterProvider) TestConnection(ctx context.Context) error {
	_, err := p.Complete(ctx, []Message{{Role: "user", Content: "ping"}})
	return err
}

// Model implements Provider.
func (p *OpenRouterProvider) Model() string {
	return p.config.Model
}

// mapStatusError converts upstream HTTP statuses to sentinel errors.
func mapStatusError(status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized:
		return ErrInvalidAPIKey
	case status == http.StatusPaymentRequired:
		return ErrInsufficientCredits
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("ai: unexpected status %d", status)
	}
}
