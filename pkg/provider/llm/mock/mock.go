// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify the prompts the orchestrator sends
// and to feed controlled responses without a live backend. Fields must be
// configured before first use; mutating them during concurrent calls is the
// caller's responsibility.
package mock

import (
	"context"
	"sync"

	"github.com/subforge/subforge/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
//
// When CompleteFunc is set it is consulted for every call, receiving the
// zero-based call number; this is how retry sequences ("fail twice, then
// succeed") are scripted. Otherwise CompleteResponse/CompleteErr are
// returned for every call.
type Provider struct {
	mu sync.Mutex

	// CompleteFunc, when non-nil, produces the result of each Complete call.
	// call is the zero-based invocation count across the provider.
	CompleteFunc func(call int, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// CompleteResponse is returned by Complete when CompleteFunc is nil.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned by Complete when CompleteFunc is nil.
	CompleteErr error

	// TokensPerChar overrides the token estimate; zero means the default
	// 4-chars-per-token approximation.
	TokensPerChar float64

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities llm.ModelCapabilities

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// Complete records the call and returns the scripted result.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	call := len(p.CompleteCalls)
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	fn := p.CompleteFunc
	resp, err := p.CompleteResponse, p.CompleteErr
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(call, req)
	}
	return resp, err
}

// CountTokens approximates tokens from content length.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	perChar := p.TokensPerChar
	if perChar <= 0 {
		perChar = 0.25
	}
	total := 0
	for _, m := range messages {
		total += int(float64(len(m.Content))*perChar) + 4
	}
	return total, nil
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return p.ModelCapabilities
}

// Calls returns a snapshot of recorded Complete calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
