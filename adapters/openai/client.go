// Package openai provides the ModelCaller adapter for OpenAI-compatible
// chat completion APIs. The reported usage.total_tokens is the measured
// consumption that the usage recorder bills.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/artpar/tokengate/ports"
)

// Config configures the upstream client.
type Config struct {
	BaseURL string // e.g. https://api.openai.com
	APIKey  string
	Model   string // default model when the request names none
	Timeout time.Duration

	// Client-side pacing toward the upstream. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int
}

// Client calls an OpenAI-compatible /v1/chat/completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	hc      *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewClient creates an upstream client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		hc:      &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete performs one metered chat completion. Cancellation before the
// response arrives means no consumption was measured and the caller bills
// nothing.
func (c *Client) Complete(ctx context.Context, req ports.CompletionRequest) (ports.CompletionResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return ports.CompletionResult{}, fmt.Errorf("upstream pacing: %w", err)
		}
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return ports.CompletionResult{}, fmt.Errorf("encode completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return ports.CompletionResult{}, fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return ports.CompletionResult{}, fmt.Errorf("upstream call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return ports.CompletionResult{}, fmt.Errorf("read upstream response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ports.CompletionResult{}, fmt.Errorf("decode upstream response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		c.logger.Warn().Int("status", resp.StatusCode).Str("model", model).Msg("upstream rejected completion")
		return ports.CompletionResult{}, fmt.Errorf("upstream status %d: %s", resp.StatusCode, msg)
	}
	if len(parsed.Choices) == 0 {
		return ports.CompletionResult{}, fmt.Errorf("upstream returned no choices")
	}

	respModel := parsed.Model
	if respModel == "" {
		respModel = model
	}

	return ports.CompletionResult{
		Content:    parsed.Choices[0].Message.Content,
		Model:      respModel,
		TokensUsed: parsed.Usage.TotalTokens,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// Ensure interface compliance.
var _ ports.ModelCaller = (*Client)(nil)
