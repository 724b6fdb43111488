package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/kioku-ai/kioku/internal/kioku/facts"
	"github.com/kioku-ai/kioku/internal/kioku/llm"
	"github.com/kioku-ai/kioku/internal/kioku/store"
	"github.com/kioku-ai/kioku/internal/kioku/vector"
)

var (
	// ErrEmptyConversationID rejects operations without a conversation id.
	ErrEmptyConversationID = errors.New("session: conversation id is required")

	// ErrEmptyMessage rejects turns without user text.
	ErrEmptyMessage = errors.New("session: message text is required")

	// ErrReservedID rejects conversation ids that would collide with the
	// global facts namespace in the vector store.
	ErrReservedID = errors.New("session: conversation id is reserved")
)

// Registry maps conversation ids to their coordinators, creating each one
// lazily on first use. The registry itself only guards the map; per-
// conversation serialization is the coordinator's own mutex.
type Registry struct {
	db       Persistence
	memory   *vector.Store
	facts    *facts.Service
	provider llm.Provider
	logger   *slog.Logger

	mu           sync.Mutex
	coordinators map[string]*Coordinator
}

// NewRegistry builds a registry over the shared stores. A nil logger falls
// back to slog.Default().
func NewRegistry(db Persistence, memory *vector.Store, factsSvc *facts.Service, provider llm.Provider, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		db:           db,
		memory:       memory,
		facts:        factsSvc,
		provider:     provider,
		logger:       logger,
		coordinators: make(map[string]*Coordinator),
	}
}

// coordinator returns the coordinator for id, creating it when absent.
// Validation happens here so no operation has side effects on a bad id.
func (r *Registry) coordinator(id string) (*Coordinator, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyConversationID
	}
	if id == facts.Namespace {
		return nil, ErrReservedID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coordinators[id]
	if !ok {
		c = &Coordinator{
			id:       id,
			db:       r.db,
			memory:   r.memory,
			facts:    r.facts,
			provider: r.provider,
			logger:   r.logger,
		}
		r.coordinators[id] = c
	}
	return c, nil
}

// SubmitMessage runs one turn on the conversation and returns the reply and
// the conversation's total message count.
func (r *Registry) SubmitMessage(ctx context.Context, id, text string) (string, int, error) {
	c, err := r.coordinator(id)
	if err != nil {
		return "", 0, err
	}
	return c.HandleTurn(ctx, text)
}

// ClearConversation wipes the conversation's history and vector memory.
func (r *Registry) ClearConversation(ctx context.Context, id string) error {
	c, err := r.coordinator(id)
	if err != nil {
		return err
	}
	c.Clear(ctx)
	return nil
}

// Settings returns the conversation's settings fields.
func (r *Registry) Settings(ctx context.Context, id string) (store.Settings, error) {
	c, err := r.coordinator(id)
	if err != nil {
		return store.Settings{}, err
	}
	return c.Settings(ctx), nil
}

// SetSettings updates the non-nil settings fields.
func (r *Registry) SetSettings(ctx context.Context, id string, contextTemplate, instructMode *string) error {
	c, err := r.coordinator(id)
	if err != nil {
		return err
	}
	c.SetSettings(ctx, contextTemplate, instructMode)
	return nil
}
