package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kioku-ai/kioku/internal/kioku/chat"
)

func TestAnthropicComplete(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "Water it twice a week."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 52, "output_tokens": 9}
		}`))
	}))
	defer server.Close()

	p := NewAnthropic(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL})

	got, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []chat.Message{
			{Role: chat.RoleSystem, Content: "You are a gardener."},
			{Role: chat.RoleUser, Content: "How often do I water basil?"},
			{Role: chat.RoleAssistant, Content: "It depends on the pot size."},
			{Role: chat.RoleUser, Content: "A small pot."},
		},
		MaxTokens:   1024,
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if got.Text != "Water it twice a week." {
		t.Errorf("Text = %q", got.Text)
	}
	if got.Usage.PromptTokens != 52 || got.Usage.CompletionTokens != 9 || got.Usage.TotalTokens != 61 {
		t.Errorf("Usage = %+v", got.Usage)
	}

	// The system message must be lifted out of the message list.
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 wire messages, got %d", len(msgs))
	}
	if _, ok := gotBody["system"]; !ok {
		t.Error("expected a system field in the request body")
	}
	if mt, _ := gotBody["max_tokens"].(float64); int(mt) != 1024 {
		t.Errorf("wire max_tokens = %v", gotBody["max_tokens"])
	}
}

func TestAnthropicComplete_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"type": "error", "error": {"type": "invalid_request_error", "message": "max_tokens required"}}`))
	}))
	defer server.Close()

	p := NewAnthropic(AnthropicConfig{APIKey: "k", BaseURL: server.URL})

	_, err := p.Complete(context.Background(), CompletionRequest{
		Messages:  []chat.Message{{Role: chat.RoleUser, Content: "hi"}},
		MaxTokens: 64,
	})
	if err == nil {
		t.Fatal("expected error from upstream failure")
	}
}
