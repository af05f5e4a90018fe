package types

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// AIResponse is the terminal result of one completed request, or one
// dispatch round inside the tool loop when Partial is set.
type AIResponse struct {
	Content   string     `json:"content"`
	Model     string     `json:"model"`
	Backend   string     `json:"backend"`
	Usage     Usage      `json:"usage"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`

	// Partial marks a round that ended in tool calls rather than a final
	// answer. The orchestrator never returns a partial response to callers.
	Partial bool `json:"partial,omitempty"`

	// FinishReason is the backend's stop reason ("stop", "tool_calls",
	// "length", ...).
	FinishReason string `json:"finishReason,omitempty"`
}

// Chunk is one increment of streamed output.
type Chunk struct {
	Content string `json:"content,omitempty"`

	// ToolCallDelta carries incremental tool-call data; consumers of the
	// public stream never see these, the aggregator folds them into the
	// orchestration loop.
	ToolCallDelta *ToolCallDelta `json:"toolCallDelta,omitempty"`

	Usage        *Usage `json:"usage,omitempty"`
	FinishReason string `json:"finishReason,omitempty"`
	Done         bool   `json:"done,omitempty"`
}

// ToolCallDelta is a partial tool call emitted mid-stream.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}
