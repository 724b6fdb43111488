package vector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemIndex implements Index on chromem-go, a pure-Go embedded vector
// database. One chromem collection backs one namespace, which gives exact
// per-namespace counts and a real drop primitive instead of a capped
// query-then-delete loop.
type ChromemIndex struct {
	db *chromem.DB

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// errNoEmbeddingFunc guards against chromem ever being asked to embed on its
// own: every document and query carries a pre-computed vector.
var errNoEmbeddingFunc = errors.New("vector chromem: embeddings must be supplied by the caller")

func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// NewChromem creates an in-memory index.
func NewChromem() *ChromemIndex {
	return &ChromemIndex{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

// NewChromemPersistent creates an index persisted under dir, restoring any
// namespaces written by previous runs.
func NewChromemPersistent(dir string) (*ChromemIndex, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("vector chromem: open persistent db: %w", err)
	}
	idx := &ChromemIndex{
		db:          db,
		collections: make(map[string]*chromem.Collection),
	}
	for name, col := range db.ListCollections() {
		idx.collections[name] = col
	}
	return idx, nil
}

// collection returns the chromem collection for a namespace, creating it on
// first use.
func (x *ChromemIndex) collection(namespace string, create bool) (*chromem.Collection, error) {
	x.mu.RLock()
	col, ok := x.collections[namespace]
	x.mu.RUnlock()
	if ok {
		return col, nil
	}
	if !create {
		return nil, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if col, ok := x.collections[namespace]; ok {
		return col, nil
	}

	col, err := x.db.GetOrCreateCollection(namespace, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("vector chromem: create collection %q: %w", namespace, err)
	}
	x.collections[namespace] = col
	return col, nil
}

// Upsert inserts records, overwriting existing ids.
func (x *ChromemIndex) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	col, err := x.collection(namespace, true)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("vector chromem: record with empty id in namespace %q", namespace)
		}
		docs = append(docs, chromem.Document{
			ID:        r.ID,
			Content:   r.Content,
			Embedding: r.Vector,
			Metadata:  r.Metadata,
		})
	}

	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("vector chromem: upsert %d records into %q: %w", len(records), namespace, err)
	}
	return nil
}

// Query runs a namespace-scoped similarity search. topK is clamped to the
// collection size because chromem rejects nResults larger than the number of
// stored documents.
func (x *ChromemIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Result, error) {
	if topK <= 0 || len(vector) == 0 {
		return nil, nil
	}

	col, err := x.collection(namespace, false)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, nil
	}

	if n := col.Count(); n < topK {
		topK = n
	}
	if topK == 0 {
		return nil, nil
	}

	matches, err := col.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector chromem: query %q: %w", namespace, err)
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, Result{
			ID:         m.ID,
			Content:    m.Content,
			Metadata:   m.Metadata,
			Similarity: m.Similarity,
		})
	}
	return results, nil
}

// Delete removes the given ids. A namespace that was never written is a no-op.
func (x *ChromemIndex) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	col, err := x.collection(namespace, false)
	if err != nil {
		return err
	}
	if col == nil {
		return nil
	}

	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("vector chromem: delete %d ids from %q: %w", len(ids), namespace, err)
	}
	return nil
}

// Drop removes the namespace entirely.
func (x *ChromemIndex) Drop(_ context.Context, namespace string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.collections[namespace]; !ok {
		return nil
	}
	if err := x.db.DeleteCollection(namespace); err != nil {
		return fmt.Errorf("vector chromem: drop collection %q: %w", namespace, err)
	}
	delete(x.collections, namespace)
	return nil
}

// Count returns the number of records in the namespace.
func (x *ChromemIndex) Count(_ context.Context, namespace string) (int, error) {
	col, err := x.collection(namespace, false)
	if err != nil {
		return 0, err
	}
	if col == nil {
		return 0, nil
	}
	return col.Count(), nil
}

// Compile-time interface satisfaction check.
var _ Index = (*ChromemIndex)(nil)
