// Package ingest is the hand-off point for content produced outside the
// core: document extractors deliver plain text, the scrape pipeline delivers
// cleaned page text. Nothing here parses binary formats or strips markup —
// that happens upstream. The package names the content and feeds it to the
// conversation's vector memory as a chunked document.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/kioku-ai/kioku/internal/kioku/vector"
)

var (
	// ErrEmptyConversationID rejects ingestion without a target conversation.
	ErrEmptyConversationID = errors.New("ingest: conversation id is required")

	// ErrEmptyContent rejects ingestion of blank text.
	ErrEmptyContent = errors.New("ingest: content is required")

	// ErrEmptyName rejects documents without a filename or source URL.
	ErrEmptyName = errors.New("ingest: document name is required")
)

// Service stores extracted documents and scraped pages into vector memory.
type Service struct {
	memory *vector.Store
	logger *slog.Logger
}

// NewService creates the ingestion service. A nil logger falls back to
// slog.Default().
func NewService(memory *vector.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{memory: memory, logger: logger}
}

// IngestDocument stores already-extracted plain text under the conversation's
// namespace, chunked and embedded.
func (s *Service) IngestDocument(ctx context.Context, conversationID, filename, plainText string) error {
	if strings.TrimSpace(conversationID) == "" {
		return ErrEmptyConversationID
	}
	if strings.TrimSpace(filename) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(plainText) == "" {
		return ErrEmptyContent
	}

	if err := s.memory.StoreDocument(ctx, conversationID, filename, plainText); err != nil {
		return fmt.Errorf("ingest: store document %q: %w", filename, err)
	}
	s.logger.Debug("document ingested",
		"conversation", conversationID,
		"filename", filename,
		"chars", len(plainText))
	return nil
}

// IngestPage stores cleaned page text delivered by the scrape pipeline. The
// document is named after the source URL's host and path so re-scraping the
// same page overwrites its chunks rather than duplicating them.
func (s *Service) IngestPage(ctx context.Context, conversationID, sourceURL, cleanedText string) error {
	if strings.TrimSpace(sourceURL) == "" {
		return ErrEmptyName
	}
	return s.IngestDocument(ctx, conversationID, pageName(sourceURL), cleanedText)
}

// pageName derives a stable document name from a URL, dropping the query and
// fragment so volatile parameters do not split one page across names.
func pageName(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil || u.Host == "" {
		return sourceURL
	}
	name := u.Host + strings.TrimSuffix(u.Path, "/")
	return name
}
