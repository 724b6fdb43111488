package vector

import (
	"context"
	"fmt"
	"testing"
)

// unit returns an 8-dim unit vector along the given axis.
func unit(axis int) []float32 {
	v := make([]float32, 8)
	v[axis] = 1
	return v
}

func TestChromemIndex_UpsertAndQuery(t *testing.T) {
	idx := NewChromem()
	ctx := context.Background()

	records := []Record{
		{ID: "a", Vector: unit(0), Content: "alpha", Metadata: map[string]string{"role": "user"}},
		{ID: "b", Vector: unit(1), Content: "beta", Metadata: map[string]string{"role": "assistant"}},
	}
	if err := idx.Upsert(ctx, "ns1", records); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	results, err := idx.Query(ctx, "ns1", unit(0), 2)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" {
		t.Errorf("best match = %q, want a", results[0].ID)
	}
	if results[0].Similarity < results[1].Similarity {
		t.Error("results not ordered by descending similarity")
	}
	if results[0].Content != "alpha" || results[0].Metadata["role"] != "user" {
		t.Errorf("metadata/content not round-tripped: %+v", results[0])
	}
}

func TestChromemIndex_UpsertIdempotent(t *testing.T) {
	idx := NewChromem()
	ctx := context.Background()

	rec := Record{ID: "a", Vector: unit(0), Content: "first"}
	if err := idx.Upsert(ctx, "ns1", []Record{rec}); err != nil {
		t.Fatalf("first Upsert() error: %v", err)
	}

	rec.Content = "second"
	if err := idx.Upsert(ctx, "ns1", []Record{rec}); err != nil {
		t.Fatalf("second Upsert() error: %v", err)
	}

	n, err := idx.Count(ctx, "ns1")
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 record after re-upsert, got %d", n)
	}

	results, err := idx.Query(ctx, "ns1", unit(0), 1)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(results) != 1 || results[0].Content != "second" {
		t.Errorf("expected last write to win, got %+v", results)
	}
}

func TestChromemIndex_NamespaceIsolation(t *testing.T) {
	idx := NewChromem()
	ctx := context.Background()

	if err := idx.Upsert(ctx, "conv-a", []Record{{ID: "x", Vector: unit(0), Content: "only in a"}}); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	results, err := idx.Query(ctx, "conv-b", unit(0), 5)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("query in conv-b returned %d records inserted only into conv-a", len(results))
	}
}

func TestChromemIndex_QueryClampsTopK(t *testing.T) {
	idx := NewChromem()
	ctx := context.Background()

	if err := idx.Upsert(ctx, "ns1", []Record{{ID: "a", Vector: unit(0), Content: "a"}}); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	// topK larger than the collection must not error.
	results, err := idx.Query(ctx, "ns1", unit(0), 50)
	if err != nil {
		t.Fatalf("Query() with oversized topK error: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestChromemIndex_QueryUnknownNamespace(t *testing.T) {
	idx := NewChromem()
	results, err := idx.Query(context.Background(), "never-written", unit(0), 5)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results, got %v", results)
	}
}

func TestChromemIndex_DeleteByID(t *testing.T) {
	idx := NewChromem()
	ctx := context.Background()

	if err := idx.Upsert(ctx, "ns1", []Record{
		{ID: "a", Vector: unit(0), Content: "a"},
		{ID: "b", Vector: unit(1), Content: "b"},
	}); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	if err := idx.Delete(ctx, "ns1", []string{"a"}); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	n, err := idx.Count(ctx, "ns1")
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 record after delete, got %d", n)
	}
}

func TestChromemIndex_DropClearsEverything(t *testing.T) {
	idx := NewChromem()
	ctx := context.Background()

	// Large enough that a query-then-delete loop with a small page size
	// would leave leftovers; the drop primitive must clear everything.
	var records []Record
	for i := range 250 {
		records = append(records, Record{
			ID:      fmt.Sprintf("r-%d", i),
			Vector:  unit(i % 8),
			Content: fmt.Sprintf("record %d", i),
		})
	}
	if err := idx.Upsert(ctx, "big", records); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	n, _ := idx.Count(ctx, "big")
	if n != 250 {
		t.Fatalf("expected 250 records before drop, got %d", n)
	}

	if err := idx.Drop(ctx, "big"); err != nil {
		t.Fatalf("Drop() error: %v", err)
	}

	n, err := idx.Count(ctx, "big")
	if err != nil {
		t.Fatalf("Count() after drop error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected full clearance, %d records remain", n)
	}
}

func TestChromemIndex_DropUnknownNamespace(t *testing.T) {
	idx := NewChromem()
	if err := idx.Drop(context.Background(), "ghost"); err != nil {
		t.Errorf("Drop() on unknown namespace should be a no-op, got %v", err)
	}
}

func TestStoreWithChromem_EndToEndRecall(t *testing.T) {
	idx := NewChromem()
	s, err := NewStore(idx, fakeEmbedder{}, StoreConfig{}, nil)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	ctx := context.Background()

	if err := s.StoreMessage(ctx, "c1", 0, "user", "my favourite colour is teal"); err != nil {
		t.Fatalf("StoreMessage() error: %v", err)
	}
	if err := s.StoreMessage(ctx, "c1", 1, "assistant", "noted, teal it is"); err != nil {
		t.Fatalf("StoreMessage() error: %v", err)
	}

	// Identical text embeds to an identical fake vector → similarity 1.
	matches, err := s.QueryRelevant(ctx, "c1", "my favourite colour is teal", 5)
	if err != nil {
		t.Fatalf("QueryRelevant() error: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected at least one match")
	}
	if matches[0].Content != "my favourite colour is teal" {
		t.Errorf("best match = %q", matches[0].Content)
	}
	if matches[0].Score < 0.99 {
		t.Errorf("identical text should score ~1, got %f", matches[0].Score)
	}
}
