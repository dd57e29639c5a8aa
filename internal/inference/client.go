// Package inference is the HTTP client for the local llama.cpp-style
// server that loads downloaded model files.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnavailable indicates the inference server is not reachable or has
// no model loaded.
var ErrUnavailable = errors.New("inference server unavailable")

// Config holds inference client settings.
type Config struct {
	// BaseURL of the inference server (default: http://127.0.0.1:8080).
	BaseURL string

	// Timeout for status probes (default: 5s).
	Timeout time.Duration

	// CompletionTimeout for generation requests, which can run long on
	// CPU-only machines (default: 2m).
	CompletionTimeout time.Duration
}

// Status describes the inference server as seen from a probe.
type Status struct {
	Ready     bool
	ModelPath string
}

// Client talks to the inference server. Safe for concurrent use.
type Client struct {
	config           Config
	probeClient      *http.Client
	completionClient *http.Client
	logger           zerolog.Logger
}

// NewClient creates an inference client, filling in defaults for any
// zero config values.
func NewClient(config Config, logger zerolog.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8080"
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.CompletionTimeout == 0 {
		config.CompletionTimeout = 2 * time.Minute
	}
	return &Client{
		config:           config,
		probeClient:      &http.Client{Timeout: config.Timeout},
		completionClient: &http.Client{Timeout: config.CompletionTimeout},
		logger:           logger.With().Str("component", "inference").Logger(),
	}
}

// Status probes the inference server. An unreachable server or a
// non-200 health response both report not ready; the model path is
// best-effort and may be empty even when ready.
func (c *Client) Status(ctx context.Context) Status {
	var st Status

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/health", nil)
	if err != nil {
		return st
	}

	resp, err := c.probeClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Msg("inference server unreachable")
		return st
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return st
	}
	st.Ready = true

	if path, err := c.modelPath(ctx); err == nil {
		st.ModelPath = path
	}
	return st
}

func (c *Client) modelPath(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/props", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.probeClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("props request failed: %s", resp.Status)
	}

	var props struct {
		ModelPath string `json:"model_path"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&props); err != nil {
		return "", err
	}
	return props.ModelPath, nil
}

type completionRequest struct {
	Prompt      string  `json:"prompt"`
	NPredict    int     `json:"n_predict"`
	Temperature float64 `json:"temperature"`
}

type completionResponse struct {
	Content string `json:"content"`
}

// Complete generates a response for the given prompt on the loaded
// model.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{
		Prompt:      prompt,
		NPredict:    512,
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.completionClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion request failed: %s", resp.Status)
	}

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding completion response: %w", err)
	}
	return result.Content, nil
}
