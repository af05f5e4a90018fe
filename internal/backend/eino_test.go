package backend

import (
	"io"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unillm/unillm/pkg/types"
)

func intPtr(i int) *int { return &i }

func collectChunks(t *testing.T, frames []*schema.Message) []*types.Chunk {
	t.Helper()
	cs := newEinoChunkStream(schema.StreamReaderFromArray(frames), "anthropic")
	defer cs.Close()

	var out []*types.Chunk
	for {
		c, err := cs.Recv()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, c)
	}
}

func TestChunkStreamKeepsProviderToolCallIndex(t *testing.T) {
	// Argument fragments for call 0 span two frames; call 1 arrives after.
	// The provider-assigned index must survive so the fragments reassemble
	// under the right call instead of collapsing into one slot.
	frames := []*schema.Message{
		{ToolCalls: []schema.ToolCall{{
			Index:    intPtr(0),
			ID:       "call_a",
			Function: schema.FunctionCall{Name: "alpha", Arguments: `{"x":`},
		}}},
		{ToolCalls: []schema.ToolCall{{
			Index:    intPtr(0),
			Function: schema.FunctionCall{Arguments: `1}`},
		}}},
		{ToolCalls: []schema.ToolCall{{
			Index:    intPtr(1),
			ID:       "call_b",
			Function: schema.FunctionCall{Name: "beta", Arguments: `{"y":2}`},
		}}},
	}

	chunks := collectChunks(t, frames)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		require.NotNil(t, c.ToolCallDelta)
	}

	assert.Equal(t, 0, chunks[0].ToolCallDelta.Index)
	assert.Equal(t, "call_a", chunks[0].ToolCallDelta.ID)
	assert.Equal(t, 0, chunks[1].ToolCallDelta.Index)
	assert.Equal(t, `1}`, chunks[1].ToolCallDelta.Arguments)
	assert.Equal(t, 1, chunks[2].ToolCallDelta.Index)
	assert.Equal(t, "call_b", chunks[2].ToolCallDelta.ID)
}

func TestChunkStreamSplitsMultiCallFrames(t *testing.T) {
	frames := []*schema.Message{
		{
			Content: "lead",
			ToolCalls: []schema.ToolCall{
				{ID: "call_a", Function: schema.FunctionCall{Name: "alpha", Arguments: `{}`}},
				{ID: "call_b", Function: schema.FunctionCall{Name: "beta", Arguments: `{}`}},
			},
			ResponseMeta: &schema.ResponseMeta{FinishReason: "tool_calls"},
		},
	}

	chunks := collectChunks(t, frames)
	require.Len(t, chunks, 3)

	assert.Equal(t, "lead", chunks[0].Content)
	require.NotNil(t, chunks[1].ToolCallDelta)
	require.NotNil(t, chunks[2].ToolCallDelta)
	assert.Equal(t, "call_a", chunks[1].ToolCallDelta.ID)
	assert.Equal(t, "call_b", chunks[2].ToolCallDelta.ID)
	// Without a provider index the frame position disambiguates.
	assert.Equal(t, 0, chunks[1].ToolCallDelta.Index)
	assert.Equal(t, 1, chunks[2].ToolCallDelta.Index)
	assert.Equal(t, "tool_calls", chunks[2].FinishReason)
}

func TestChunkStreamMetaOnlyFrame(t *testing.T) {
	frames := []*schema.Message{
		{Content: "hi"},
		{ResponseMeta: &schema.ResponseMeta{
			FinishReason: "stop",
			Usage:        &schema.TokenUsage{PromptTokens: 3, CompletionTokens: 7},
		}},
	}

	chunks := collectChunks(t, frames)
	require.Len(t, chunks, 2)
	assert.Equal(t, "hi", chunks[0].Content)
	require.NotNil(t, chunks[1].Usage)
	assert.Equal(t, 3, chunks[1].Usage.InputTokens)
	assert.Equal(t, 7, chunks[1].Usage.OutputTokens)
	assert.Equal(t, "stop", chunks[1].FinishReason)
}
