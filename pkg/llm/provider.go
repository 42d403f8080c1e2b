package llm

import (
	"context"
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// Chunk is one incremental piece of a streamed completion.
type Chunk struct {
	Content string
	Err     error // non-nil terminates the stream
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string        // Override default model
	JSONSchema  *SchemaFormat // Constrain output to a JSON object
}

// SchemaFormat asks the provider to emit a JSON object matching the schema.
// Providers that cannot enforce schemas fall back to plain JSON mode.
type SchemaFormat struct {
	Name   string
	Schema map[string]interface{}
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

func WithJSONSchema(name string, schema map[string]interface{}) Option {
	return func(o *Options) {
		o.JSONSchema = &SchemaFormat{Name: name, Schema: schema}
	}
}

// LLMProvider defines the contract for any LLM backend
type LLMProvider interface {
	// Chat sends a chat history to the model and returns the response
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)

	// Generate sends a single prompt to the model (convenience method)
	Generate(ctx context.Context, prompt string, options ...Option) (string, error)

	// ChatStream sends a chat history and yields the response incrementally.
	// The returned channel is closed when the generation finishes; a Chunk
	// with a non-nil Err is the last element on failure. Chunks already
	// delivered stay delivered.
	ChatStream(ctx context.Context, history []Message, options ...Option) (<-chan Chunk, error)
}
