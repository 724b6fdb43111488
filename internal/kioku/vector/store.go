package vector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/kioku-ai/kioku/internal/kioku/embed"
)

const (
	// MaxContentChars caps the text stored with a record and the text fed to
	// the embedder. Anything longer is truncated before embedding.
	MaxContentChars = 8000

	// DefaultWindow and DefaultOverlap control document chunking.
	DefaultWindow  = 1500
	DefaultOverlap = 200

	// DefaultBatch is how many chunks are embedded per upstream call.
	DefaultBatch = 16
)

// Metadata keys attached to records.
const (
	MetaRole   = "role"
	MetaSource = "source"
	MetaChunk  = "chunk"
)

// Match is one retrieval hit: the stored role and content plus the
// similarity score, ordered by descending score.
type Match struct {
	Role    string
	Content string
	Score   float32
}

// StoreConfig tunes chunking and batching. Zero values select the defaults.
type StoreConfig struct {
	Window  int
	Overlap int
	Batch   int
}

// Store ties chunking, embedding, and the index together behind the
// operations the session coordinator and the ingestion boundary need. All
// operations are scoped by an explicit namespace parameter.
//
// Every operation may fail independently of the caller's primary flow;
// callers on the turn path treat failures as soft (log and continue).
type Store struct {
	index    Index
	embedder embed.Embedder
	cfg      StoreConfig
	logger   *slog.Logger
}

// NewStore creates a Store. It returns an error when overlap ≥ window, which
// would stall document chunking.
func NewStore(index Index, embedder embed.Embedder, cfg StoreConfig, logger *slog.Logger) (*Store, error) {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = DefaultOverlap
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultBatch
	}
	if cfg.Overlap >= cfg.Window {
		return nil, fmt.Errorf("vector: overlap %d must be smaller than window %d", cfg.Overlap, cfg.Window)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{index: index, embedder: embedder, cfg: cfg, logger: logger}, nil
}

// shortDigest returns a 12-hex-char SHA-256 prefix. Record ids embed digests
// of the mutable components (namespace, filename) instead of the raw strings,
// so two inputs that would truncate alike under a length limit cannot collide
// while the id stays deterministic and well under 64 bytes.
func shortDigest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:6])
}

// MessageID derives the record id for a conversation message. Deterministic
// in (namespace, seq): re-storing the same message overwrites its record.
func MessageID(namespace string, seq int) string {
	return fmt.Sprintf("m-%s-%d", shortDigest(namespace), seq)
}

// DocumentChunkID derives the record id for one window of a document.
func DocumentChunkID(namespace, filename string, chunk int) string {
	return fmt.Sprintf("d-%s-%s-%d", shortDigest(namespace), shortDigest(filename), chunk)
}

// truncate limits s to MaxContentChars runes.
func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxContentChars {
		return s
	}
	return string(runes[:MaxContentChars])
}

// StoreMessage embeds one chat message and upserts it under the conversation
// namespace. A noop embedder (nil vector) silently disables storage.
// Idempotent for a fixed (namespace, seq): last write wins.
func (s *Store) StoreMessage(ctx context.Context, namespace string, seq int, role, content string) error {
	content = truncate(content)

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("vector: embed message %d: %w", seq, err)
	}
	if vec == nil {
		return nil
	}

	rec := Record{
		ID:       MessageID(namespace, seq),
		Vector:   vec,
		Content:  content,
		Metadata: map[string]string{MetaRole: role},
	}
	if err := s.index.Upsert(ctx, namespace, []Record{rec}); err != nil {
		return fmt.Errorf("vector: store message %d: %w", seq, err)
	}
	return nil
}

// StoreDocument splits content into overlapping windows, embeds them in
// fixed-size batches, and upserts one record per window. The stored text is
// prefixed with the source filename so retrieval surfaces its origin.
// Documents far larger than one embedding batch are handled by batching.
func (s *Store) StoreDocument(ctx context.Context, namespace, filename, content string) error {
	if filename == "" {
		return fmt.Errorf("vector: document filename must not be empty")
	}
	chunks := Chunk(content, s.cfg.Window, s.cfg.Overlap)
	if len(chunks) == 0 {
		return fmt.Errorf("vector: document %q is empty", filename)
	}

	stored := 0
	for start := 0; start < len(chunks); start += s.cfg.Batch {
		end := start + s.cfg.Batch
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = truncate(fmt.Sprintf("[%s] %s", filename, c))
		}

		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("vector: embed document %q chunks %d-%d: %w", filename, start, end-1, err)
		}

		records := make([]Record, 0, len(batch))
		for i := range batch {
			if vecs[i] == nil {
				continue
			}
			records = append(records, Record{
				ID:      DocumentChunkID(namespace, filename, start+i),
				Vector:  vecs[i],
				Content: texts[i],
				Metadata: map[string]string{
					MetaRole:   "system",
					MetaSource: filename,
					MetaChunk:  fmt.Sprintf("%d", start+i),
				},
			})
		}
		if len(records) == 0 {
			continue
		}
		if err := s.index.Upsert(ctx, namespace, records); err != nil {
			return fmt.Errorf("vector: store document %q: %w", filename, err)
		}
		stored += len(records)
	}

	s.logger.Debug("vector: stored document",
		"namespace", namespace,
		"filename", filename,
		"chunks", len(chunks),
		"records", stored,
	)
	return nil
}

// QueryRelevant embeds the query text and returns up to topK matches from the
// namespace, ordered by descending similarity. Matches without content are
// dropped. A noop embedder yields no matches.
func (s *Store) QueryRelevant(ctx context.Context, namespace, queryText string, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	vec, err := s.embedder.Embed(ctx, truncate(queryText))
	if err != nil {
		return nil, fmt.Errorf("vector: embed query: %w", err)
	}
	if vec == nil {
		return nil, nil
	}

	results, err := s.index.Query(ctx, namespace, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("vector: query %q: %w", namespace, err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		if r.Content == "" {
			continue
		}
		matches = append(matches, Match{
			Role:    r.Metadata[MetaRole],
			Content: r.Content,
			Score:   r.Similarity,
		})
	}
	return matches, nil
}

// ClearNamespace removes every record in the namespace. The backing index
// exposes an exact drop primitive, so the clear is complete no matter how
// many records the namespace holds.
func (s *Store) ClearNamespace(ctx context.Context, namespace string) error {
	if err := s.index.Drop(ctx, namespace); err != nil {
		return fmt.Errorf("vector: clear namespace %q: %w", namespace, err)
	}
	return nil
}

// Index exposes the underlying index for collaborators that need raw record
// access (the facts service enumerates and deletes by id).
func (s *Store) Index() Index {
	return s.index
}

// Embedder exposes the embedder for collaborators that embed directly.
func (s *Store) Embedder() embed.Embedder {
	return s.embedder
}
