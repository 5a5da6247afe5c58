// Package llm provides the chat completion gateway used by the planning and
// page generation pipelines. All model traffic flows through a single Client
// so rate limiting, logging, and structured-output decoding live in one place.
package llm

import (
	"context"

	"github.com/Sopamo/taletwo/pkg/config"
)

// Conversation roles understood by the Chat Completions API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions selects the model and decoding behavior for a single call.
type ChatOptions struct {
	// Model overrides the gateway default when non-empty.
	Model string
	// JSONResponse asks the provider for a single JSON object response.
	JSONResponse bool
	// ReasoningEffort is forwarded verbatim ("minimal", "low", "medium", "high").
	ReasoningEffort string
	// MaxCompletionTokens caps the response length. Zero keeps the provider default.
	MaxCompletionTokens int
	// Tag labels the call in logs, e.g. "planner" or "page".
	Tag string
}

// Client sends a chat conversation to a language model and returns the raw
// assistant text. Implementations must be safe for concurrent use.
type Client interface {
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error)
}

// OptionsForTask builds ChatOptions from the routing entry for a task. All
// pipeline calls request JSON responses.
func OptionsForTask(mc config.ModelConfig, tag string) ChatOptions {
	return ChatOptions{
		Model:               mc.Model,
		JSONResponse:        true,
		ReasoningEffort:     mc.ReasoningEffort,
		MaxCompletionTokens: mc.MaxCompletionTokens,
		Tag:                 tag,
	}
}
