package backend

import (
	"context"
	"io"
	"sync"

	"github.com/unillm/unillm/pkg/types"
)

// Turn is one scripted backend response: either a failure, a set of tool
// calls, or final content.
type Turn struct {
	Content   string
	ToolCalls []types.ToolCall
	Err       error

	// ChunkSize splits Content into streaming chunks of this many bytes.
	// Zero streams the content as one chunk.
	ChunkSize int
}

// ScriptedBackend is a deterministic in-process backend for tests and
// offline development. It replays its turns in order; once exhausted it
// repeats the last turn. All methods are safe for concurrent use.
type ScriptedBackend struct {
	name  string
	turns []Turn

	mu        sync.Mutex
	pos       int
	requests  []*Request
	available bool
	caps      []types.Capability
}

// NewScripted creates a scripted backend that replays turns in order.
func NewScripted(name string, turns ...Turn) *ScriptedBackend {
	return &ScriptedBackend{
		name:      name,
		turns:     turns,
		available: true,
		caps:      []types.Capability{types.CapChat, types.CapStreaming, types.CapTools},
	}
}

// SetAvailable toggles the availability predicate.
func (b *ScriptedBackend) SetAvailable(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.available = v
}

// SetCapabilities overrides the declared capability set.
func (b *ScriptedBackend) SetCapabilities(caps ...types.Capability) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.caps = caps
}

// Requests returns every request seen so far, in order.
func (b *ScriptedBackend) Requests() []*Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Request, len(b.requests))
	copy(out, b.requests)
	return out
}

// Calls returns how many completions were attempted.
func (b *ScriptedBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func (b *ScriptedBackend) Name() string { return b.name }

func (b *ScriptedBackend) Available(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available
}

func (b *ScriptedBackend) Capabilities() []types.Capability {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.Capability, len(b.caps))
	copy(out, b.caps)
	return out
}

func (b *ScriptedBackend) next(req *Request) (Turn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(req.Tools) > 0 {
		hasTools := false
		for _, c := range b.caps {
			if c == types.CapTools {
				hasTools = true
				break
			}
		}
		if !hasTools {
			return Turn{}, rejectTools(b.name)
		}
	}

	b.requests = append(b.requests, req)
	if len(b.turns) == 0 {
		return Turn{Content: ""}, nil
	}
	turn := b.turns[b.pos]
	if b.pos < len(b.turns)-1 {
		b.pos++
	}
	return turn, nil
}

// Complete replays the next scripted turn.
func (b *ScriptedBackend) Complete(ctx context.Context, req *Request) (*types.AIResponse, error) {
	turn, err := b.next(req)
	if err != nil {
		return nil, err
	}
	if turn.Err != nil {
		return nil, turn.Err
	}

	resp := &types.AIResponse{
		Content:      turn.Content,
		Model:        req.Model,
		Backend:      b.name,
		ToolCalls:    turn.ToolCalls,
		FinishReason: "stop",
		Usage:        types.Usage{InputTokens: len(req.Messages), OutputTokens: len(turn.Content)},
	}
	if len(turn.ToolCalls) > 0 {
		resp.Partial = true
		resp.FinishReason = "tool_calls"
	}
	return resp, nil
}

// Stream replays the next scripted turn as a chunk sequence.
func (b *ScriptedBackend) Stream(ctx context.Context, req *Request) (ChunkStream, error) {
	turn, err := b.next(req)
	if err != nil {
		return nil, err
	}
	if turn.Err != nil {
		return nil, turn.Err
	}
	return newScriptedStream(b.name, req.Model, turn), nil
}

// scriptedStream yields a turn as deltas followed by a final frame.
type scriptedStream struct {
	chunks []*types.Chunk
	pos    int
	closed bool
	mu     sync.Mutex
}

func newScriptedStream(backendName, model string, turn Turn) *scriptedStream {
	var chunks []*types.Chunk

	size := turn.ChunkSize
	if size <= 0 {
		size = len(turn.Content)
	}
	for i := 0; i < len(turn.Content); i += size {
		end := i + size
		if end > len(turn.Content) {
			end = len(turn.Content)
		}
		chunks = append(chunks, &types.Chunk{Content: turn.Content[i:end]})
	}

	for i, tc := range turn.ToolCalls {
		chunks = append(chunks, &types.Chunk{
			ToolCallDelta: &types.ToolCallDelta{
				Index:     i,
				ID:        tc.ID,
				Name:      tc.Name,
				Arguments: string(tc.Arguments),
			},
		})
	}

	finish := "stop"
	if len(turn.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	chunks = append(chunks, &types.Chunk{
		Done:         true,
		FinishReason: finish,
		Usage:        &types.Usage{OutputTokens: len(turn.Content)},
	})

	return &scriptedStream{chunks: chunks}
}

func (s *scriptedStream) Recv() (*types.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *scriptedStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
