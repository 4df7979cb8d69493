// Package llm wraps the external model-call collaborator behind a small
// interface. Responses are raw text with usage metadata; callers own all
// parsing and validation.
package llm

import (
	"context"
	"time"
)

// Client defines the interface for model providers.
type Client interface {
	// Complete sends a request and returns the raw model response.
	// The text may be malformed with respect to any schema the caller
	// expects; no structural contract is made here.
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Request represents a single generation request.
type Request struct {
	// Model is the specific model to use (e.g., "claude-sonnet-4-6").
	Model string

	// System is the system prompt establishing the persona.
	System string

	// Prompt is the user-turn input text.
	Prompt string

	// MaxTokens caps the generated output length.
	MaxTokens int

	// Temperature controls sampling randomness.
	Temperature float64
}

// Response represents a raw model response with metadata.
type Response struct {
	// Text is the unparsed generated text.
	Text string

	// Model is the model that produced this response.
	Model string

	// Usage contains token accounting for this call.
	Usage Usage

	// Duration is the time taken to generate the response.
	Duration time.Duration
}

// Usage contains token counts for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
