package backend

import (
	"encoding/json"
	"io"

	"github.com/cloudwego/eino/schema"

	"github.com/unillm/unillm/pkg/types"
)

// toEinoMessages converts conversation history into eino schema messages.
func toEinoMessages(msgs []types.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		em := &schema.Message{Content: m.Content}
		switch m.Role {
		case types.RoleSystem:
			em.Role = schema.System
		case types.RoleUser:
			em.Role = schema.User
		case types.RoleTool:
			em.Role = schema.Tool
			em.ToolCallID = m.ToolCallID
		default:
			em.Role = schema.Assistant
		}
		for _, tc := range m.ToolCalls {
			em.ToolCalls = append(em.ToolCalls, schema.ToolCall{
				ID: tc.ID,
				Function: schema.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out = append(out, em)
	}
	return out
}

// toEinoTools converts tool schemas into eino tool infos.
func toEinoTools(tools []types.ToolInfo) []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		out = append(out, &schema.ToolInfo{
			Name:        t.Name,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(parseJSONSchemaToParams(t.Parameters)),
		})
	}
	return out
}

// parseJSONSchemaToParams converts a JSON Schema object into eino
// parameter infos. Unknown property types default to string.
func parseJSONSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var js struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schemaJSON, &js); err != nil {
		return nil
	}

	required := make(map[string]bool, len(js.Required))
	for _, r := range js.Required {
		required[r] = true
	}

	params := make(map[string]*schema.ParameterInfo, len(js.Properties))
	for name, prop := range js.Properties {
		t := schema.String
		switch prop.Type {
		case "integer":
			t = schema.Integer
		case "number":
			t = schema.Number
		case "boolean":
			t = schema.Boolean
		case "array":
			t = schema.Array
		case "object":
			t = schema.Object
		}
		params[name] = &schema.ParameterInfo{
			Type:     t,
			Desc:     prop.Description,
			Required: required[name],
		}
	}
	return params
}

// fromEinoMessage converts a complete eino response message into an
// AIResponse.
func fromEinoMessage(msg *schema.Message, backendName, model string) *types.AIResponse {
	resp := &types.AIResponse{
		Content: msg.Content,
		Model:   model,
		Backend: backendName,
	}
	for _, tc := range msg.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	if meta := msg.ResponseMeta; meta != nil {
		resp.FinishReason = meta.FinishReason
		if meta.Usage != nil {
			resp.Usage = types.Usage{
				InputTokens:  meta.Usage.PromptTokens,
				OutputTokens: meta.Usage.CompletionTokens,
			}
		}
	}
	if len(resp.ToolCalls) > 0 {
		resp.Partial = true
		if resp.FinishReason == "" {
			resp.FinishReason = "tool_calls"
		}
	} else if resp.FinishReason == "" {
		resp.FinishReason = "stop"
	}
	return resp
}

// einoChunkStream adapts an eino stream reader to the ChunkStream
// contract. One frame may carry content and several tool-call deltas;
// each becomes its own chunk, so pending holds the not-yet-delivered
// remainder of the last frame.
type einoChunkStream struct {
	reader  *schema.StreamReader[*schema.Message]
	backend string
	pending []*types.Chunk
}

func newEinoChunkStream(reader *schema.StreamReader[*schema.Message], backendName string) *einoChunkStream {
	return &einoChunkStream{reader: reader, backend: backendName}
}

func (s *einoChunkStream) Recv() (*types.Chunk, error) {
	for len(s.pending) == 0 {
		msg, err := s.reader.Recv()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, classifyErr(s.backend, err)
		}
		s.pending = translateFrame(msg)
	}

	chunk := s.pending[0]
	s.pending = s.pending[1:]
	return chunk, nil
}

// translateFrame splits one stream frame into chunks: at most one
// content chunk plus one chunk per tool-call delta. The delta index is
// the provider-assigned stream index, which stays stable while a call's
// argument fragments arrive across frames; the frame position is only a
// fallback for providers that omit it. Frame metadata rides on the last
// chunk so the aggregator counts usage exactly once.
func translateFrame(msg *schema.Message) []*types.Chunk {
	var chunks []*types.Chunk
	if msg.Content != "" {
		chunks = append(chunks, &types.Chunk{Content: msg.Content})
	}
	for i, tc := range msg.ToolCalls {
		idx := i
		if tc.Index != nil {
			idx = *tc.Index
		}
		chunks = append(chunks, &types.Chunk{
			ToolCallDelta: &types.ToolCallDelta{
				Index:     idx,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}

	meta := msg.ResponseMeta
	if len(chunks) == 0 {
		if meta == nil {
			return nil
		}
		chunks = append(chunks, &types.Chunk{})
	}
	if meta != nil {
		last := chunks[len(chunks)-1]
		last.FinishReason = meta.FinishReason
		if meta.Usage != nil {
			last.Usage = &types.Usage{
				InputTokens:  meta.Usage.PromptTokens,
				OutputTokens: meta.Usage.CompletionTokens,
			}
		}
	}
	return chunks
}

func (s *einoChunkStream) Close() {
	s.reader.Close()
}
