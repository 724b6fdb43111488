// Package llm is the generative-model boundary. The session coordinator
// hands it a fully assembled, budget-fitted message list; the provider
// returns the model's reply text. A provider failure is fatal to the turn —
// unlike the memory side channels, there is no degraded mode for generation.
package llm

import (
	"context"
	"errors"

	"github.com/kioku-ai/kioku/internal/kioku/chat"
)

// ErrRateLimit is returned when the upstream API reports a rate-limiting
// condition (e.g. HTTP 429). Callers surface it to the user rather than
// retrying blindly.
var ErrRateLimit = errors.New("llm: upstream rate limit exceeded")

// CompletionRequest is one generation call.
type CompletionRequest struct {
	// Messages is the assembled prompt in order: system, facts, recalled
	// memory, then the trimmed recent history.
	Messages []chat.Message
	// MaxTokens caps the response length.
	MaxTokens int
	// Temperature is the sampling temperature.
	Temperature float64
}

// TokenUsage carries the token counts reported by the upstream API.
// Fields are zero-valued when the provider does not report usage data.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	// Model is the model name as reported by the provider (may be empty).
	Model string
}

// Completion is the result of a generation call.
type Completion struct {
	Text  string
	Usage TokenUsage
}

// Provider generates a reply for an assembled message list.
// Implementations must be safe for concurrent use from multiple goroutines.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}
