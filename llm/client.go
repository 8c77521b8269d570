// Package llm provides a provider-agnostic LLM client.
// A call is a single request/response round trip: provider failures are
// classified and returned to the caller unchanged, never retried here.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxResponseSize limits the LLM response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// defaultTimeout bounds a single model call so a hung endpoint cannot
// stall an orchestration run forever.
const defaultTimeout = 180 * time.Second

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request defines an LLM completion request.
type Request struct {
	// Provider selects the registered provider implementation.
	Provider string

	// Model is the model name to request.
	Model string

	// APIKey authenticates the call. Resolved by the caller from settings.
	APIKey string

	// Endpoint overrides the provider's default base URL when non-empty.
	Endpoint string

	// Messages is the chat history to send to the LLM.
	Messages []Message

	// Temperature controls randomness. nil uses endpoint default, 0 is deterministic.
	Temperature *float64

	// MaxTokens limits response length. 0 uses endpoint default.
	MaxTokens int
}

// TokenUsage represents token consumption details for an LLM call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the LLM completion result.
type Response struct {
	// Content is the generated text.
	Content string

	// Model is the actual model that was used.
	Model string

	// Usage contains token consumption metrics (if available).
	Usage TokenUsage

	// FinishReason indicates why generation stopped.
	FinishReason string
}

// Completer is the completion contract orchestrators depend on.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Client is a provider-agnostic LLM client.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the per-call timeout on the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(client *Client) {
		client.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a new LLM client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout, // Allow time for LLM responses
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Complete sends a completion request. Exactly one round trip: any failure
// comes back as a ProviderError and is never retried here.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Provider == "" {
		return nil, fmt.Errorf("provider is required")
	}
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}

	provider := GetProvider(req.Provider)
	if provider == nil {
		return nil, NewProviderError(fmt.Errorf("unknown provider: %s", req.Provider), false)
	}

	url := provider.BuildURL(req.Endpoint)

	body, err := provider.BuildRequestBody(req.Model, req.Messages, req.Temperature, req.MaxTokens)
	if err != nil {
		return nil, NewProviderError(fmt.Errorf("build request body: %w", err), false)
	}

	c.logger.Debug("Sending LLM request",
		"provider", req.Provider,
		"model", req.Model,
		"url", url,
		"messages", len(req.Messages))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError(fmt.Errorf("create HTTP request: %w", err), false)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq, req.APIKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are transient
		return nil, NewProviderError(fmt.Errorf("HTTP request failed: %w", err), true)
	}
	defer httpResp.Body.Close()

	// Read response body with size limit to prevent memory exhaustion
	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewProviderError(fmt.Errorf("read response body: %w", err), true)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	resp, err := provider.ParseResponse(respBody, req.Model)
	if err != nil {
		return nil, NewProviderError(fmt.Errorf("parse provider response: %w", err), false)
	}

	return resp, nil
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("LLM API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		// Rate limiting is transient
		return NewProviderError(err, true)
	case statusCode >= 500:
		// Server errors are transient
		return NewProviderError(err, true)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		// Auth errors are fatal
		return NewProviderError(err, false)
	default:
		// Remaining 4xx errors are fatal
		return NewProviderError(err, false)
	}
}
