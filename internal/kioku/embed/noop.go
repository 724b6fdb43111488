package embed

import "context"

// NoopEmbedder is a stub Embedder that returns nil vectors. When wired as
// the active embedder, semantic recall and fact retrieval are effectively
// disabled — no embeddings means no similarity matching — while the rest of
// the turn pipeline keeps working on recent history alone.
type NoopEmbedder struct{}

// Embed returns nil with no error, signalling that embedding is unavailable.
func (NoopEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, nil
}

// EmbedBatch returns one nil vector per input, preserving length and order.
func (NoopEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

// Compile-time interface satisfaction check.
var _ Embedder = NoopEmbedder{}
