// Package facts manages globally-scoped, user-declared statements. Facts are
// not tied to any conversation: they live in one reserved vector namespace
// and are retrieved in every conversation by semantic relevance.
package facts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/kioku-ai/kioku/internal/kioku/embed"
	"github.com/kioku-ai/kioku/internal/kioku/vector"
)

// Namespace is the reserved vector namespace holding all facts. No
// conversation id may collide with it; the session layer rejects it as a
// conversation id.
const Namespace = "facts"

// ErrEmptyContent rejects blank facts before any embedding work.
var ErrEmptyContent = errors.New("facts: content must not be empty")

// Fact is one stored statement.
type Fact struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Service provides fact CRUD and relevance retrieval on top of the vector
// store, bound to the reserved namespace.
type Service struct {
	store *vector.Store
	dim   int
}

// NewService creates a fact service. dim is the embedding dimensionality used
// to build the neutral enumeration vector; pass 0 for the deployment default.
func NewService(store *vector.Store, dim int) *Service {
	if dim <= 0 {
		dim = embed.Dimension
	}
	return &Service{store: store, dim: dim}
}

// Add embeds and stores a new fact, returning it with its generated id.
func (s *Service) Add(ctx context.Context, content string) (Fact, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Fact{}, ErrEmptyContent
	}

	vec, err := s.store.Embedder().Embed(ctx, content)
	if err != nil {
		return Fact{}, fmt.Errorf("facts: embed: %w", err)
	}
	if vec == nil {
		return Fact{}, fmt.Errorf("facts: embedding unavailable")
	}

	f := Fact{ID: "f-" + uuid.New().String(), Content: content}
	rec := vector.Record{
		ID:       f.ID,
		Vector:   vec,
		Content:  content,
		Metadata: map[string]string{vector.MetaRole: "fact"},
	}
	if err := s.store.Index().Upsert(ctx, Namespace, []vector.Record{rec}); err != nil {
		return Fact{}, fmt.Errorf("facts: store: %w", err)
	}
	return f, nil
}

// List enumerates every stored fact. Enumeration queries the namespace with a
// neutral unit vector and K equal to the exact record count, so the listing
// is complete regardless of how many facts exist.
func (s *Service) List(ctx context.Context) ([]Fact, error) {
	count, err := s.store.Index().Count(ctx, Namespace)
	if err != nil {
		return nil, fmt.Errorf("facts: count: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	results, err := s.store.Index().Query(ctx, Namespace, s.neutralVector(), count)
	if err != nil {
		return nil, fmt.Errorf("facts: enumerate: %w", err)
	}

	facts := make([]Fact, 0, len(results))
	for _, r := range results {
		if r.Content == "" {
			continue
		}
		facts = append(facts, Fact{ID: r.ID, Content: r.Content})
	}
	return facts, nil
}

// Delete removes one fact by id. Unknown ids are a no-op.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("facts: id must not be empty")
	}
	if err := s.store.Index().Delete(ctx, Namespace, []string{id}); err != nil {
		return fmt.Errorf("facts: delete %q: %w", id, err)
	}
	return nil
}

// DeleteAll removes every fact.
func (s *Service) DeleteAll(ctx context.Context) error {
	return s.store.ClearNamespace(ctx, Namespace)
}

// Relevant returns up to topK facts most relevant to the query text, ordered
// by descending similarity.
func (s *Service) Relevant(ctx context.Context, queryText string, topK int) ([]vector.Match, error) {
	return s.store.QueryRelevant(ctx, Namespace, queryText, topK)
}

// neutralVector is a direction-free unit query used only for enumeration:
// with every component equal, no stored fact is favoured by construction.
func (s *Service) neutralVector() []float32 {
	v := make([]float32, s.dim)
	c := float32(1 / math.Sqrt(float64(s.dim)))
	for i := range v {
		v[i] = c
	}
	return v
}
