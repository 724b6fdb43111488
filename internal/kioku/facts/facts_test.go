package facts

import (
	"context"
	"fmt"
	"testing"

	"github.com/kioku-ai/kioku/internal/kioku/embed"
	"github.com/kioku-ai/kioku/internal/kioku/vector"
)

// hashEmbedder produces deterministic 8-dim vectors without a remote call.
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	var sum int
	for _, r := range text {
		sum = (sum*31 + int(r)) % 9973
	}
	v := make([]float32, 8)
	v[sum%8] = 1
	v[(sum/8)%8] += 0.5
	return v, nil
}

func (h hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i], _ = h.Embed(ctx, t)
	}
	return vecs, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := vector.NewStore(vector.NewChromem(), hashEmbedder{}, vector.StoreConfig{}, nil)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	return NewService(store, 8)
}

func TestService_AddAndList(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	f, err := svc.Add(ctx, "User's name is Alex")
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if f.ID == "" {
		t.Fatal("expected a generated id")
	}

	facts, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("expected 1 fact, got %d", len(facts))
	}
	if facts[0].Content != "User's name is Alex" {
		t.Errorf("content = %q", facts[0].Content)
	}
	if facts[0].ID != f.ID {
		t.Errorf("id = %q, want %q", facts[0].ID, f.ID)
	}
}

func TestService_AddRejectsEmpty(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Add(context.Background(), "   "); err == nil {
		t.Fatal("expected error for blank content")
	}
}

func TestService_ListBeyondReferenceCap(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// More facts than the reference enumeration cap of 100: the listing is
	// complete because K tracks the exact count.
	const n = 120
	for i := range n {
		if _, err := svc.Add(ctx, fmt.Sprintf("fact number %d about topic %d", i, i*i)); err != nil {
			t.Fatalf("Add(%d) error: %v", i, err)
		}
	}

	facts, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(facts) != n {
		t.Errorf("expected %d facts, got %d", n, len(facts))
	}
}

func TestService_DeleteOne(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	keep, err := svc.Add(ctx, "keep this")
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	drop, err := svc.Add(ctx, "drop that")
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	if err := svc.Delete(ctx, drop.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	facts, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(facts) != 1 || facts[0].ID != keep.ID {
		t.Errorf("expected only %q to remain, got %v", keep.ID, facts)
	}
}

func TestService_DeleteAll(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := range 5 {
		if _, err := svc.Add(ctx, fmt.Sprintf("fact %d", i)); err != nil {
			t.Fatalf("Add() error: %v", err)
		}
	}
	if err := svc.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll() error: %v", err)
	}

	facts, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(facts) != 0 {
		t.Errorf("expected no facts after DeleteAll, got %d", len(facts))
	}
}

func TestService_RelevantFindsIdenticalText(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Add(ctx, "User's name is Alex"); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	matches, err := svc.Relevant(ctx, "User's name is Alex", 3)
	if err != nil {
		t.Fatalf("Relevant() error: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected a match")
	}
	if matches[0].Content != "User's name is Alex" {
		t.Errorf("best match = %q", matches[0].Content)
	}
}

func TestService_NoopEmbedderCannotAdd(t *testing.T) {
	store, err := vector.NewStore(vector.NewChromem(), embed.NoopEmbedder{}, vector.StoreConfig{}, nil)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	svc := NewService(store, 8)

	if _, err := svc.Add(context.Background(), "anything"); err == nil {
		t.Fatal("expected error when embedding is unavailable")
	}
}
