package types

import "time"

// Request carries everything the orchestrator needs for one logical ask.
type Request struct {
	// Prompt is the new user input. Ignored when Messages is non-empty and
	// already ends with a user message.
	Prompt string `json:"prompt"`

	// Messages is prior conversation history, oldest first.
	Messages []Message `json:"messages,omitempty"`

	// Model is a model ID or @alias. Empty means the configured default.
	Model string `json:"model,omitempty"`

	// Backend pins a specific backend by name, bypassing fallback expansion.
	Backend string `json:"backend,omitempty"`

	System      string   `json:"system,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"maxTokens,omitempty"`

	// Tools restricts the request's tool set to these registered names.
	// Nil means no tools.
	Tools []string `json:"tools,omitempty"`

	// Timeout is the overall deadline for the orchestrated request.
	// Zero means the configured default.
	Timeout time.Duration `json:"-"`
}

// UserMessage returns the prompt as a user message.
func (r *Request) UserMessage() Message {
	return Message{Role: RoleUser, Content: r.Prompt}
}
