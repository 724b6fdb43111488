package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kioku-ai/kioku/internal/kioku/chat"
)

// ErrNotFound is returned when the requested conversation does not exist.
var ErrNotFound = errors.New("store: conversation not found")

// Settings are the two operator-tunable free-text fields of a conversation.
type Settings struct {
	ContextTemplate string `json:"context_template"`
	InstructMode    string `json:"instruct_mode"`
}

// ConversationInfo is the metadata row exposed by List.
type ConversationInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// EnsureConversation creates the metadata row for id when it does not exist
// yet. Existing rows are left untouched.
func (s *Store) EnsureConversation(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, created_at) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, now,
	)
	if err != nil {
		return fmt.Errorf("store: ensure conversation %q: %w", id, err)
	}
	return nil
}

// GetSettings returns the settings fields for id, or ErrNotFound.
func (s *Store) GetSettings(ctx context.Context, id string) (Settings, error) {
	var set Settings
	err := s.db.QueryRowContext(ctx,
		`SELECT context_template, instruct_mode FROM conversations WHERE id = ?`, id,
	).Scan(&set.ContextTemplate, &set.InstructMode)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, ErrNotFound
	}
	if err != nil {
		return Settings{}, fmt.Errorf("store: get settings %q: %w", id, err)
	}
	return set, nil
}

// UpdateSettings writes the non-nil fields for id, creating the conversation
// row when absent.
func (s *Store) UpdateSettings(ctx context.Context, id string, contextTemplate, instructMode *string) error {
	if err := s.EnsureConversation(ctx, id); err != nil {
		return err
	}
	if contextTemplate != nil {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE conversations SET context_template = ? WHERE id = ?`,
			*contextTemplate, id,
		); err != nil {
			return fmt.Errorf("store: update context template %q: %w", id, err)
		}
	}
	if instructMode != nil {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE conversations SET instruct_mode = ? WHERE id = ?`,
			*instructMode, id,
		); err != nil {
			return fmt.Errorf("store: update instruct mode %q: %w", id, err)
		}
	}
	return nil
}

// SetTitle updates the display title for id.
func (s *Store) SetTitle(ctx context.Context, id, title string) error {
	if err := s.EnsureConversation(ctx, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ? WHERE id = ?`, title, id,
	); err != nil {
		return fmt.Errorf("store: set title %q: %w", id, err)
	}
	return nil
}

// List returns all conversation metadata rows, newest first.
func (s *Store) List(ctx context.Context) ([]ConversationInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at FROM conversations ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	defer rows.Close()

	var infos []ConversationInfo
	for rows.Next() {
		var info ConversationInfo
		var createdAt string
		if err := rows.Scan(&info.ID, &info.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan conversation row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			info.CreatedAt = t
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate conversations: %w", err)
	}
	return infos, nil
}

// Count returns the number of conversations.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count conversations: %w", err)
	}
	return n, nil
}

// AppendMessage persists one message row for the conversation.
func (s *Store) AppendMessage(ctx context.Context, id string, m chat.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, seq, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, seq) DO UPDATE SET
			role       = excluded.role,
			content    = excluded.content,
			created_at = excluded.created_at`,
		id, m.Seq, m.Role, m.Content, m.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store: append message %d to %q: %w", m.Seq, id, err)
	}
	return nil
}

// LoadMessages returns the conversation's full history in sequence order.
func (s *Store) LoadMessages(ctx context.Context, id string) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, role, content, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY seq`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("store: load messages %q: %w", id, err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var m chat.Message
		var createdAt string
		if err := rows.Scan(&m.Seq, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan message row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			m.CreatedAt = t
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate messages %q: %w", id, err)
	}
	return msgs, nil
}

// DeleteMessages removes every message row of the conversation, keeping the
// metadata row. Used by the coordinator's clear operation.
func (s *Store) DeleteMessages(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = ?`, id,
	); err != nil {
		return fmt.Errorf("store: delete messages %q: %w", id, err)
	}
	return nil
}

// DeleteConversation removes the metadata row and all messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if err := s.DeleteMessages(ctx, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("store: delete conversation %q: %w", id, err)
	}
	return nil
}
