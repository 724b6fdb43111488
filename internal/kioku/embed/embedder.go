// Package embed converts text into fixed-dimension float vectors through a
// remote embedding service. Implementations range from a no-op stub (which
// disables semantic recall) to an OpenAI-compatible HTTP client for
// production use.
package embed

import "context"

// Dimension is the fixed output dimensionality of the deployment's embedding
// model. Every stored vector and every query vector has exactly this length.
const Dimension = 768

// Embedder produces vector embeddings for text.
//
// Input longer than the model's effective limit must be truncated by the
// caller before invocation; no truncation happens here. Remote failures are
// returned as errors with no retry — retry policy belongs to the caller.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// Embed produces a vector embedding for the given text.
	// Returns nil with no error when embedding is not available (noop).
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch produces one embedding per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
