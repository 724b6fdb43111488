// Package app assembles the service: relational store, vector index,
// embedding client, fact service, session registry, ingestion boundary, and
// the HTTP facade in front of them.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kioku-ai/kioku/internal/kioku/config"
	"github.com/kioku-ai/kioku/internal/kioku/embed"
	"github.com/kioku-ai/kioku/internal/kioku/facts"
	"github.com/kioku-ai/kioku/internal/kioku/ingest"
	"github.com/kioku-ai/kioku/internal/kioku/llm"
	"github.com/kioku-ai/kioku/internal/kioku/session"
	"github.com/kioku-ai/kioku/internal/kioku/store"
	"github.com/kioku-ai/kioku/internal/kioku/vector"
)

// App owns every long-lived component and their shutdown order.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	db       *store.Store
	embedder embed.Embedder
	sessions *session.Registry
	facts    *facts.Service
	ingest   *ingest.Service
	server   *Server
}

// New builds the full component graph from the configuration. Nothing starts
// listening or connecting beyond opening the SQLite file and, when
// configured, the persistent vector directory.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	var index vector.Index
	if cfg.Vector.Dir != "" {
		persistent, err := vector.NewChromemPersistent(cfg.Vector.Dir)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("app: open vector index: %w", err)
		}
		index = persistent
	} else {
		index = vector.NewChromem()
	}

	var embedder embed.Embedder = embed.NewOpenAI(embed.OpenAIConfig{
		APIKey:  cfg.EmbeddingAPIKey(),
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
	})
	if cfg.Embedding.CacheSize > 0 {
		cached, err := embed.NewCached(embedder, int64(cfg.Embedding.CacheSize))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("app: embedding cache: %w", err)
		}
		embedder = cached
	}

	memory, err := vector.NewStore(index, embedder, vector.StoreConfig{
		Window:  cfg.Vector.Window,
		Overlap: cfg.Vector.Overlap,
		Batch:   cfg.Vector.Batch,
	}, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("app: vector store: %w", err)
	}

	provider, err := newProvider(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	factsSvc := facts.NewService(memory, embed.Dimension)
	sessions := session.NewRegistry(db, memory, factsSvc, provider, logger)
	ingestSvc := ingest.NewService(memory, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		embedder: embedder,
		sessions: sessions,
		facts:    factsSvc,
		ingest:   ingestSvc,
		server:   NewServer(cfg.ListenAddr, sessions, factsSvc, ingestSvc, db, logger),
	}, nil
}

// newProvider selects the generative-model client from the configuration.
func newProvider(cfg config.Config) (llm.Provider, error) {
	switch cfg.Chat.Provider {
	case config.ProviderOpenAI:
		return llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:  cfg.ChatAPIKey(),
			BaseURL: cfg.Chat.BaseURL,
			Model:   cfg.Chat.Model,
		}), nil
	case config.ProviderAnthropic:
		return llm.NewAnthropic(llm.AnthropicConfig{
			APIKey:  cfg.ChatAPIKey(),
			BaseURL: cfg.Chat.BaseURL,
			Model:   cfg.Chat.Model,
		}), nil
	default:
		return nil, fmt.Errorf("app: unknown chat provider %q", cfg.Chat.Provider)
	}
}

// Server returns the HTTP facade, mainly for tests.
func (a *App) Server() *Server {
	return a.server
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.server.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("kioku started",
		"addr", a.cfg.ListenAddr,
		"db", a.cfg.Database.Path,
		"chat_provider", a.cfg.Chat.Provider)

	<-ctx.Done()
	a.Close()
	return nil
}

// Close stops the server and releases held resources.
func (a *App) Close() {
	a.server.Stop()
	if closer, ok := a.embedder.(interface{ Close() }); ok {
		closer.Close()
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("store close failed", "err", err)
	}
}
