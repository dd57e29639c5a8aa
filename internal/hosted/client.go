// Package hosted is the chat client for an OpenAI-compatible hosted
// API, used as the fallback when no local model is ready.
package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/deskhand/deskhand/internal/retry"
)

var (
	// ErrNotConfigured indicates no API key is set.
	ErrNotConfigured = errors.New("hosted API key not configured")

	// ErrAuthFailed indicates the API key was rejected.
	ErrAuthFailed = errors.New("hosted API authentication failed")

	// ErrRateLimited indicates the API refused the request for rate limiting.
	ErrRateLimited = errors.New("hosted API rate limited")
)

// Config holds hosted client settings.
type Config struct {
	// BaseURL of the OpenAI-compatible API (default: https://api.openai.com/v1).
	BaseURL string

	// APIKey authenticates requests. Empty means the hosted fallback is
	// disabled.
	APIKey string

	// Model identifier to request (default: gpt-4o-mini).
	Model string

	// Timeout for a single request (default: 60s).
	Timeout time.Duration

	// MaxAttempts bounds retries of transient failures (default: 3).
	MaxAttempts int

	// RetryDelay is the initial backoff delay (default: 1s).
	RetryDelay time.Duration
}

// ChatMessage is a single message in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the hosted chat API. Safe for concurrent use.
type Client struct {
	config     Config
	httpClient *http.Client
	retryCfg   retry.Config
	logger     zerolog.Logger
}

// NewClient creates a hosted client, filling in defaults for any zero
// config values.
func NewClient(config Config, logger zerolog.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 1 * time.Second
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		retryCfg: retry.Config{
			InitialDelay: config.RetryDelay,
			MaxDelay:     30 * time.Second,
			MaxAttempts:  config.MaxAttempts,
			Multiplier:   2.0,
		},
		logger: logger.With().Str("component", "hosted").Logger(),
	}
}

// Configured reports whether an API key is available.
func (c *Client) Configured() bool {
	return c.config.APIKey != ""
}

// Chat sends the conversation to the hosted API and returns the
// assistant reply. Transient failures (network errors, 429, 5xx) are
// retried with exponential backoff; auth and other client errors fail
// immediately.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	var content string
	err := retry.Do(ctx, "hosted chat", c.retryCfg, func() error {
		got, err := c.chatOnce(ctx, messages)
		if err != nil {
			return err
		}
		content = got
		return nil
	}, c.logger)
	return content, err
}

func (c *Client) chatOnce(ctx context.Context, messages []ChatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrAuthFailed
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &retry.Transient{Err: ErrRateLimited}
	case resp.StatusCode >= 500:
		return "", &retry.Transient{Err: fmt.Errorf("hosted API returned status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		var apiErr apiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("hosted API error: %s", apiErr.Error.Message)
		}
		return "", fmt.Errorf("hosted API returned status %d", resp.StatusCode)
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding hosted response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("hosted API returned no choices")
	}
	return result.Choices[0].Message.Content, nil
}
