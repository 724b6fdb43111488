// Package session hosts the per-conversation coordinators: each one holds a
// conversation's in-memory state, assembles the token-budgeted prompt for a
// turn, and serializes all operations on its conversation. The memory side
// channels (relational persistence, vector storage) are best-effort; only the
// generative call is fatal to a turn.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kioku-ai/kioku/common/retry"
	"github.com/kioku-ai/kioku/common/trace"
	"github.com/kioku-ai/kioku/internal/kioku/chat"
	"github.com/kioku-ai/kioku/internal/kioku/facts"
	"github.com/kioku-ai/kioku/internal/kioku/llm"
	"github.com/kioku-ai/kioku/internal/kioku/store"
	"github.com/kioku-ai/kioku/internal/kioku/tokens"
	"github.com/kioku-ai/kioku/internal/kioku/vector"
)

const (
	// MaxContextTokens is the hard ceiling on the assembled prompt plus the
	// reserved response space.
	MaxContextTokens = 24000

	// MaxResponseTokens is reserved for the model's reply.
	MaxResponseTokens = 1024

	// Temperature is the sampling temperature for every generation call.
	Temperature = 0.7

	recallTopK          = 5
	factsTopK           = 3
	recalledBlockTokens = 2000
	factsBlockTokens    = 1000

	// selfMatchThreshold filters recall matches that are just the freshly
	// stored user message echoing back.
	selfMatchThreshold = 0.99
)

const baseInstructions = "You are a helpful assistant with long-term memory. " +
	"You may be given earlier messages recalled from this conversation and " +
	"known facts about the user; use them when relevant and ignore them otherwise."

// softRetry bounds the retry of vector-side writes. Retrying never changes a
// turn's observable outcome; a final failure just degrades recall.
var softRetry = retry.Config{
	MaxAttempts:  2,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     time.Second,
}

// Persistence is the slice of the relational store a coordinator needs.
type Persistence interface {
	EnsureConversation(ctx context.Context, id string) error
	GetSettings(ctx context.Context, id string) (store.Settings, error)
	UpdateSettings(ctx context.Context, id string, contextTemplate, instructMode *string) error
	LoadMessages(ctx context.Context, id string) ([]chat.Message, error)
	AppendMessage(ctx context.Context, id string, m chat.Message) error
	DeleteMessages(ctx context.Context, id string) error
}

var _ Persistence = (*store.Store)(nil)

// Coordinator owns one conversation. All exported methods serialize on the
// coordinator's mutex, so at most one operation per conversation is in
// flight; distinct conversations run fully in parallel.
type Coordinator struct {
	id       string
	db       Persistence
	memory   *vector.Store
	facts    *facts.Service
	provider llm.Provider
	logger   *slog.Logger

	mu       sync.Mutex
	loaded   bool
	settings store.Settings
	messages []chat.Message
}

// hydrate performs the one-shot Cold to Loaded transition, reading settings
// and the full ordered history from the relational store. A failed read
// degrades to empty state rather than failing the request.
func (c *Coordinator) hydrate(ctx context.Context) {
	if c.loaded {
		return
	}
	c.loaded = true

	set, err := c.db.GetSettings(ctx, c.id)
	switch {
	case err == nil:
		c.settings = set
	case errors.Is(err, store.ErrNotFound):
		// Fresh conversation.
	default:
		c.warn(ctx, "settings load failed, starting empty", err)
	}

	msgs, err := c.db.LoadMessages(ctx, c.id)
	if err != nil {
		c.warn(ctx, "history load failed, starting empty", err)
		return
	}
	c.messages = msgs
}

// HandleTurn runs one full conversation turn: record the user message,
// assemble the budgeted prompt (system text, relevant facts, recalled
// memory, trimmed recent history), generate the reply, and record it.
// The returned count is the conversation's total message count including
// both new messages.
//
// A generation failure is returned to the caller; the user message stays
// persisted so the user's contribution is not lost.
func (c *Coordinator) HandleTurn(ctx context.Context, userText string) (string, int, error) {
	if strings.TrimSpace(userText) == "" {
		return "", 0, ErrEmptyMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if trace.FromContext(ctx) == "" {
		ctx = trace.WithTraceID(ctx, trace.GenerateID())
	}
	c.hydrate(ctx)

	user := chat.Message{
		Role:      chat.RoleUser,
		Content:   userText,
		Seq:       len(c.messages),
		CreatedAt: time.Now().UTC(),
	}
	c.messages = append(c.messages, user)
	c.persist(ctx, user)
	c.remember(ctx, user)

	recalled := c.recall(ctx, userText)
	known := c.knownFacts(ctx, userText)

	system := chat.Message{Role: chat.RoleSystem, Content: c.systemText()}
	used := tokens.CountMessage(system)

	prompt := []chat.Message{system}
	if known != "" {
		m := chat.Message{Role: chat.RoleSystem, Content: known}
		used += tokens.CountMessage(m)
		prompt = append(prompt, m)
	}
	if recalled != "" {
		m := chat.Message{Role: chat.RoleSystem, Content: recalled}
		used += tokens.CountMessage(m)
		prompt = append(prompt, m)
	}

	available := MaxContextTokens - MaxResponseTokens - used
	prompt = append(prompt, tokens.Trim(c.messages, available)...)

	completion, err := c.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    prompt,
		MaxTokens:   MaxResponseTokens,
		Temperature: Temperature,
	})
	if err != nil {
		return "", 0, fmt.Errorf("session: generate reply for %q: %w", c.id, err)
	}

	reply := chat.Message{
		Role:      chat.RoleAssistant,
		Content:   completion.Text,
		Seq:       len(c.messages),
		CreatedAt: time.Now().UTC(),
	}
	c.messages = append(c.messages, reply)
	c.persist(ctx, reply)
	c.remember(ctx, reply)

	c.logger.Debug("turn completed",
		"conversation", c.id,
		"trace_id", trace.FromContext(ctx),
		"messages", len(c.messages),
		"prompt_tokens", completion.Usage.PromptTokens,
		"completion_tokens", completion.Usage.CompletionTokens)

	return reply.Content, len(c.messages), nil
}

// Clear wipes the conversation: in-memory history, persisted message rows,
// and the vector namespace. The three channels are independently best-effort;
// a partial failure leaves the others done.
func (c *Coordinator) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrate(ctx)

	c.messages = nil
	if err := c.db.DeleteMessages(ctx, c.id); err != nil {
		c.warn(ctx, "persisted message delete failed", err)
	}
	if err := c.memory.ClearNamespace(ctx, c.id); err != nil {
		c.warn(ctx, "vector namespace purge failed", err)
	}
}

// Settings returns the conversation's current settings.
func (c *Coordinator) Settings(ctx context.Context) store.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrate(ctx)
	return c.settings
}

// SetSettings writes the non-nil fields. The in-memory update always applies;
// persistence is best-effort.
func (c *Coordinator) SetSettings(ctx context.Context, contextTemplate, instructMode *string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrate(ctx)

	if contextTemplate != nil {
		c.settings.ContextTemplate = *contextTemplate
	}
	if instructMode != nil {
		c.settings.InstructMode = *instructMode
	}
	if err := c.db.UpdateSettings(ctx, c.id, contextTemplate, instructMode); err != nil {
		c.warn(ctx, "settings persist failed", err)
	}
}

// MessageCount returns the in-memory message count.
func (c *Coordinator) MessageCount(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrate(ctx)
	return len(c.messages)
}

// persist writes one message row, creating the conversation row when absent.
func (c *Coordinator) persist(ctx context.Context, m chat.Message) {
	if err := c.db.EnsureConversation(ctx, c.id); err != nil {
		c.warn(ctx, "message persist failed", err)
		return
	}
	if err := c.db.AppendMessage(ctx, c.id, m); err != nil {
		c.warn(ctx, "message persist failed", err)
	}
}

// remember stores one message in the conversation's vector namespace.
func (c *Coordinator) remember(ctx context.Context, m chat.Message) {
	err := retry.Do(ctx, softRetry, func() error {
		return c.memory.StoreMessage(ctx, c.id, m.Seq, m.Role, m.Content)
	})
	if err != nil {
		c.warn(ctx, "vector store failed", err)
	}
}

// recall fetches the most relevant earlier messages from this conversation's
// namespace and joins them into one block. Matches that are just the freshly
// stored user message (near-perfect similarity, or textually identical) are
// discarded. Ordering follows similarity, not chronology.
func (c *Coordinator) recall(ctx context.Context, query string) string {
	matches, err := c.memory.QueryRelevant(ctx, c.id, query, recallTopK)
	if err != nil {
		c.warn(ctx, "memory recall failed", err)
		return ""
	}

	var lines []string
	for _, m := range matches {
		if m.Score > selfMatchThreshold || m.Content == query {
			continue
		}
		if m.Role != "" {
			lines = append(lines, fmt.Sprintf("[%s] %s", m.Role, m.Content))
		} else {
			lines = append(lines, m.Content)
		}
	}
	if len(lines) == 0 {
		return ""
	}

	block := "Relevant earlier messages from this conversation:\n" + strings.Join(lines, "\n")
	return tokens.Truncate(block, recalledBlockTokens-tokens.FramingOverhead)
}

// knownFacts fetches the most relevant global facts for the query.
func (c *Coordinator) knownFacts(ctx context.Context, query string) string {
	matches, err := c.facts.Relevant(ctx, query, factsTopK)
	if err != nil {
		c.warn(ctx, "facts recall failed", err)
		return ""
	}
	if len(matches) == 0 {
		return ""
	}

	lines := make([]string, 0, len(matches))
	for _, m := range matches {
		lines = append(lines, "- "+m.Content)
	}

	block := "Known facts about the user:\n" + strings.Join(lines, "\n")
	return tokens.Truncate(block, factsBlockTokens-tokens.FramingOverhead)
}

// systemText builds the system message: base instructions, then the two
// optional per-conversation fields, then the current time.
func (c *Coordinator) systemText() string {
	parts := []string{baseInstructions}
	if s := strings.TrimSpace(c.settings.InstructMode); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(c.settings.ContextTemplate); s != "" {
		parts = append(parts, s)
	}
	parts = append(parts, "Current time: "+time.Now().UTC().Format(time.RFC1123))
	return strings.Join(parts, "\n\n")
}

func (c *Coordinator) warn(ctx context.Context, msg string, err error) {
	c.logger.Warn(msg,
		"conversation", c.id,
		"trace_id", trace.FromContext(ctx),
		"err", err)
}
