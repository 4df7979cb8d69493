package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

const (
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion  = "2023-06-01"

	// APIKeyEnv is the environment variable holding the API credential.
	// Its absence is a startup-time fatal condition.
	APIKeyEnv = "ANTHROPIC_API_KEY"

	// DefaultTimeout is the per-call timeout.
	DefaultTimeout = 5 * time.Minute

	// MaxResponseSize caps how much of a response body is read (10MB).
	MaxResponseSize = 10 * 1024 * 1024
)

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	apiKey   string
	endpoint string
	httpc    *http.Client
	timeout  time.Duration
}

// NewAnthropicClient creates a client from an explicit API key.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required (set %s)", APIKeyEnv)
	}
	return &AnthropicClient{
		apiKey:   apiKey,
		endpoint: anthropicEndpoint,
		httpc:    &http.Client{},
		timeout:  DefaultTimeout,
	}, nil
}

// NewAnthropicClientFromEnv creates a client from the process environment.
func NewAnthropicClientFromEnv() (*AnthropicClient, error) {
	return NewAnthropicClient(os.Getenv(APIKeyEnv))
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      Usage  `json:"usage"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends one request to the Messages API.
func (c *AnthropicClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 6000
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		System:      req.System,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	slog.Debug("Calling model", "model", req.Model, "prompt_len", len(req.Prompt))
	start := time.Now()

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &TransportError{Provider: "anthropic", Message: "request timed out", Err: ctx.Err()}
		}
		return nil, &TransportError{Provider: "anthropic", Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, &TransportError{Provider: "anthropic", Message: "failed to read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		var parsed anthropicResponse
		if json.Unmarshal(data, &parsed) == nil && parsed.Error != nil {
			msg = fmt.Sprintf("status %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return nil, &TransportError{Provider: "anthropic", Message: msg}
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &TransportError{Provider: "anthropic", Message: "unparseable response body", Err: err}
	}

	text := ""
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	elapsed := time.Since(start)
	slog.Debug("Model call complete",
		"model", parsed.Model,
		"input_tokens", parsed.Usage.InputTokens,
		"output_tokens", parsed.Usage.OutputTokens,
		"duration", elapsed,
	)

	return &Response{
		Text:     text,
		Model:    parsed.Model,
		Usage:    parsed.Usage,
		Duration: elapsed,
	}, nil
}
