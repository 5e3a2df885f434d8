// Package mock provides a deterministic test double for embeddings.Provider.
package mock

import (
	"context"
	"hash/fnv"

	"github.com/subforge/subforge/pkg/provider/embeddings"
)

// Provider produces small deterministic vectors derived from the input text,
// so tests can assert on nearest-neighbour behaviour without a live backend.
type Provider struct {
	// Dim is the vector length. Zero means 8.
	Dim int

	// Err, if non-nil, is returned by Embed and EmbedBatch.
	Err error
}

// Embed returns a deterministic pseudo-embedding of text.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	return p.vector(text), nil
}

// EmbedBatch returns one deterministic vector per text.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

// Dimensions returns the configured vector length.
func (p *Provider) Dimensions() int {
	if p.Dim <= 0 {
		return 8
	}
	return p.Dim
}

// ModelID identifies the mock.
func (p *Provider) ModelID() string { return "mock-embeddings" }

func (p *Provider) vector(text string) []float32 {
	dim := p.Dimensions()
	v := make([]float32, dim)
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(int64(seed>>33)%1000) / 1000
	}
	return v
}

var _ embeddings.Provider = (*Provider)(nil)
