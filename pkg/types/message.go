package types

import "encoding/json"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant messages that request tool execution.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`

	// ToolCallID links a tool result message back to the call it answers.
	ToolCallID string `json:"toolCallId,omitempty"`
}

// ToolCall is a structured request, issued by a model turn, to invoke a
// named tool with arguments.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing one ToolCall. Exactly one of
// Content or Error is meaningful; a tool failure is data the model reacts
// to, not an orchestration failure.
type ToolResult struct {
	CallID  string `json:"callId"`
	Name    string `json:"name"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Message converts the result into a tool-role history message.
func (r ToolResult) Message() Message {
	content := r.Content
	if r.Error != "" {
		content = "Error: " + r.Error
	}
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: r.CallID,
	}
}
