// Package embeddings defines the Provider interface for text-embedding
// backends. Embeddings power the semantic manuscript-excerpt search in the
// Postgres glossary store; the core pipeline does not require them.
package embeddings

import "context"

// Provider is the abstraction over any embedding backend.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector length this provider produces.
	Dimensions() int

	// ModelID identifies the underlying model.
	ModelID() string
}
