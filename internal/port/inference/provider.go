// Package inference defines the port for the model inference backend.
package inference

import "context"

// Request is a single chat completion request against a named model.
type Request struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
}

// Response carries the model output and token accounting.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider is the port interface for model invocation.
type Provider interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}
