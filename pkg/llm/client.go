// Package llm is a small client for the Anthropic Messages API.
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

	"github.com/vinetrail/vinetrail-backend/logger"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	messagesPath     = "/v1/messages"
	maxErrorBodySize = 64 << 10
)

// Client sends one completion request.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// AnthropicClient implements Client over HTTP.
type AnthropicClient struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// ClientOption is a function that configures the client
type ClientOption func(*AnthropicClient)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *AnthropicClient) {
		c.httpClient = client
	}
}

// WithBaseURL points the client at a different endpoint, e.g. a proxy or test server.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *AnthropicClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// NewAnthropicClient creates a client. model and maxTokens fill in requests
// that leave them unset.
func NewAnthropicClient(apiKey, model string, maxTokens int, opts ...ClientOption) *AnthropicClient {
	c := &AnthropicClient{
		baseURL:   DefaultBaseURL,
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Complete sends req and returns the model reply. Non-2xx replies are
// returned as *APIError.
func (c *AnthropicClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	log := logger.GetLogger().Named("llm")

	body := *req
	if body.Model == "" {
		body.Model = c.model
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = c.maxTokens
	}
	if len(body.Messages) == 0 {
		return nil, fmt.Errorf("invalid request: at least one message is required")
	}

	jsonData, err := json.Marshal(&body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		var env errorEnvelope
		_ = json.Unmarshal(raw, &env)
		apiErr := env.Error
		apiErr.StatusCode = resp.StatusCode
		log.Warnw("Language model returned error status",
			"status", resp.StatusCode,
			"error_type", apiErr.Type,
			"duration", time.Since(start))
		return nil, &apiErr
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	log.Debugw("Language model call completed",
		"model", out.Model,
		"stop_reason", out.StopReason,
		"input_tokens", out.Usage.InputTokens,
		"output_tokens", out.Usage.OutputTokens,
		"duration", time.Since(start))
	return &out, nil
}
