package domain

import "context"

// LLMProvider is the interface for any LLM backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "openrouter").
	Name() string
}

// StreamDelta is a single incremental chunk from a streaming LLM response.
// A stream ends in one of two ways: a delta with Done set means the provider
// finished the response, a delta with Err set means the stream broke before
// completion. Either one is the last delta before the channel closes.
type StreamDelta struct {
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Done      bool       `json:"done,omitempty"`
	Usage     *Usage     `json:"usage,omitempty"`
	Err       error      `json:"-"`
}

// StreamingLLMProvider extends LLMProvider with streaming support.
type StreamingLLMProvider interface {
	LLMProvider
	// ChatStream sends a request and returns a channel of incremental deltas.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)
}
