// Package llm provides provider-agnostic access to chat completion
// endpoints for test case generation.
package llm

import "context"

// Client is the interface validation services depend on. Use it for
// dependency injection to enable mocking in tests.
type Client interface {
	// GenerateResponse generates a chat completion for the prompt.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error)

	// Model returns the configured model name.
	Model() string
}

// Config holds configuration for creating an LLM client.
type Config struct {
	Provider string // "openai" or "anthropic"
	Endpoint string // Optional base URL override for OpenAI-compatible endpoints
	Model    string // Model name, e.g. "gpt-4o"
	APIKey   string
}
