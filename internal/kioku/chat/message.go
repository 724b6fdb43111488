// Package chat defines the message model shared by the relational store, the
// in-memory conversation state, and the vector memory subsystem. The sequence
// index assigned at append time is the join key between all three.
package chat

import "time"

// Roles understood by the generative model's chat protocol.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	// Role is one of RoleSystem, RoleUser, RoleAssistant.
	Role string
	// Content is the message text.
	Content string
	// Seq is the conversation-scoped sequence index: strictly increasing,
	// gapless from 0, assigned at append time and never reused. Only the
	// session coordinator assigns it; every other layer treats it as opaque.
	Seq int
	// CreatedAt is when the message was appended.
	CreatedAt time.Time
}
