// Package llm defines the Provider interface for the language-model backends
// used by the optimization/translation orchestrator.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic, a local
// Ollama instance, …) and exposes a uniform completion interface. The
// contract with the model is deliberately weak: nothing about the response —
// item count, ordering, punctuation — is guaranteed to correspond to the
// request. The alignment engine exists because of that weakness; providers
// must not try to paper over it.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// Message is a single message in a model conversation.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit and differ between providers for the same text.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a
// response. A zero-value request is invalid; Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation. Providers without a dedicated system slot prepend it
	// as a "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation. The last message is typically
	// from the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. The orchestrator
	// uses low values; rewriting subtitles is not a creative task.
	Temperature float64

	// MaxTokens caps completion length. Zero means the provider default.
	MaxTokens int
}

// CompletionResponse is the full (non-streaming) model reply.
type CompletionResponse struct {
	// Content is the text of the reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// ModelCapabilities describes the limits of a model relevant to batching.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens one completion may generate.
	MaxOutputTokens int
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates the token count of messages in the model's
	// native unit. Estimates are used for batch budgeting only; they may be
	// approximate but must be monotonic in text length.
	CountTokens(messages []Message) (int, error)

	// Capabilities reports the model's context limits.
	Capabilities() ModelCapabilities
}
