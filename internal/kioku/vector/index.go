// Package vector owns all vector persistence: chunking of long documents,
// batched embedding and insertion, namespace-scoped top-K similarity queries,
// and deletion. Three logical collections share it — per-conversation message
// memory, per-conversation document memory, and the global facts memory —
// distinguished only by the namespace key.
package vector

import "context"

// Record is one entry in the vector index.
type Record struct {
	// ID identifies the record within its namespace. At most 64 bytes.
	// Ids are derived deterministically from the logical unit they represent,
	// so re-inserting the same unit overwrites rather than duplicates.
	ID string
	// Vector is the embedding, always embed.Dimension long.
	Vector []float32
	// Content is the stored text, capped at MaxContentChars.
	Content string
	// Metadata carries small string fields (role, source filename, chunk).
	Metadata map[string]string
}

// Result is a single similarity match.
type Result struct {
	ID         string
	Content    string
	Metadata   map[string]string
	Similarity float32
}

// Index is the consumed vector-service boundary. A namespace is the isolation
// unit: queries and deletes never cross it. Implementations must be safe for
// concurrent use across namespaces; callers serialize per-namespace writes.
type Index interface {
	// Upsert inserts records into the namespace, overwriting records whose
	// id already exists (last write wins).
	Upsert(ctx context.Context, namespace string, records []Record) error

	// Query returns up to topK records of the namespace ordered by descending
	// similarity to the query vector. An unknown namespace yields no results,
	// not an error.
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Result, error)

	// Delete removes the given record ids from the namespace. Unknown ids
	// are ignored.
	Delete(ctx context.Context, namespace string, ids []string) error

	// Drop removes the namespace and every record in it.
	Drop(ctx context.Context, namespace string) error

	// Count returns the number of records currently in the namespace.
	Count(ctx context.Context, namespace string) (int, error)
}
