// Package llm calls an OpenAI-compatible chat completions endpoint.
//
// The client is deliberately thin: one blocking call per submission, a hard
// deadline from configuration, no retries. A timed-out or failed call is
// surfaced to the caller and recorded as a failed run; the user resubmits.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Message is one chat message in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result is the outcome of a successful completion call.
type Result struct {
	Output           string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Config holds the upstream endpoint settings.
type Config struct {
	BaseURL string        // e.g. https://api.openai.com/v1
	APIKey  string
	Model   string        // default model when a request does not name one
	Timeout time.Duration // hard ceiling per call
}

// Client talks to the chat completions endpoint.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New creates a Client. The timeout applies to the whole call including body
// read; it is enforced via both the http.Client and a derived context so a
// caller-supplied context can still cancel earlier.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Model returns the configured default model.
func (c *Client) Model() string {
	return c.cfg.Model
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete performs one chat completion. model may be empty to use the
// configured default.
func (c *Client) Complete(ctx context.Context, model string, messages []Message) (*Result, error) {
	if model == "" {
		model = c.cfg.Model
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("llm: no messages")
	}

	body, err := json.Marshal(chatRequest{Model: model, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("llm: encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start)
	if err != nil {
		c.logger.Warn("completion call failed",
			zap.String("model", model),
			zap.Duration("latency", latency),
			zap.Error(err))
		return nil, fmt.Errorf("llm: call failed: %w", err)
	}
	defer resp.Body.Close()

	// Cap the body read; a well-formed completion response is far smaller.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("llm: read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("llm: upstream returned status %d with unparseable body", resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		msg := "upstream error"
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		c.logger.Warn("completion rejected",
			zap.String("model", model),
			zap.Int("status", resp.StatusCode),
			zap.String("upstream_error", msg))
		return nil, fmt.Errorf("llm: upstream status %d: %s", resp.StatusCode, msg)
	}

	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("llm: response has no choices")
	}

	out := &Result{
		Output:           parsed.Choices[0].Message.Content,
		Model:            parsed.Model,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		Latency:          latency,
	}
	if out.Model == "" {
		out.Model = model
	}

	c.logger.Debug("completion ok",
		zap.String("model", out.Model),
		zap.Duration("latency", latency),
		zap.Int("prompt_tokens", out.PromptTokens),
		zap.Int("completion_tokens", out.CompletionTokens))

	return out, nil
}
