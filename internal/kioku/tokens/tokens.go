// Package tokens provides token counting and budget-driven history trimming.
//
// Counting uses the ~4-characters-per-token heuristic for the target model
// family plus a fixed per-message framing overhead for role/delimiter markers.
// The heuristic is deterministic and lives behind Count so a model-exact
// tokenizer can be substituted without touching budget arithmetic.
package tokens

import (
	"unicode/utf8"

	"github.com/kioku-ai/kioku/internal/kioku/chat"
)

const (
	// charsPerToken is the character-to-token ratio of the target model family.
	charsPerToken = 4

	// FramingOverhead is the fixed token cost charged per message for the
	// role label and delimiters consumed by the chat protocol.
	FramingOverhead = 4
)

// Count returns the token count of raw text. Empty text counts as zero.
// Very long text is counted in full; truncation is the caller's concern.
func Count(text string) int {
	return len(text) / charsPerToken
}

// CountMessage returns the framed token count of a single message:
// the content count plus FramingOverhead. An empty message still costs
// the framing overhead.
func CountMessage(m chat.Message) int {
	return Count(m.Content) + FramingOverhead
}

// Truncate cuts text so that Count of the result does not exceed budget,
// backing off to a rune boundary. The returned text is what a caller should
// actually send when it charges its budget with the capped count.
func Truncate(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	limit := budget * charsPerToken
	if len(text) <= limit {
		return text
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}

// Trim returns the longest trailing suffix of msgs whose cumulative framed
// token count stays within budget.
//
// The scan runs newest to oldest and stops at the first message that would
// exceed the budget: older messages are never included once a newer one was
// excluded, so the result is always a contiguous trailing window. When even
// the newest message alone exceeds the budget the result is empty.
func Trim(msgs []chat.Message, budget int) []chat.Message {
	if budget <= 0 {
		return nil
	}

	total := 0
	cut := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		cost := CountMessage(msgs[i])
		if total+cost > budget {
			break
		}
		total += cost
		cut = i
	}

	if cut == len(msgs) {
		return nil
	}
	return msgs[cut:]
}
