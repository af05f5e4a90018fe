package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unillm/unillm/internal/backend"
	"github.com/unillm/unillm/internal/catalog"
	"github.com/unillm/unillm/internal/retry"
	"github.com/unillm/unillm/internal/route"
	"github.com/unillm/unillm/internal/tool"
	"github.com/unillm/unillm/pkg/aierrors"
	"github.com/unillm/unillm/pkg/types"
)

type fixture struct {
	orch     *Orchestrator
	backends map[string]*backend.ScriptedBackend
}

// newFixture wires an orchestrator over scripted backends with a
// sleepless retry policy. turns maps backend name to its script.
func newFixture(t *testing.T, settings types.Settings, turns map[string][]backend.Turn) *fixture {
	t.Helper()

	reg := backend.NewRegistry(time.Minute)
	scripted := make(map[string]*backend.ScriptedBackend)
	for i, name := range []string{"anthropic", "openai", "local"} {
		b := backend.NewScripted(name, turns[name]...)
		scripted[name] = b
		reg.Register(b, i)
	}

	tools := tool.NewRegistry()
	require.NoError(t, tools.Register(tool.Definition{
		ToolInfo: types.ToolInfo{Name: "echo", Description: "echoes its input"},
		Run: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", err
			}
			return "echo: " + in.Text, nil
		},
	}))
	require.NoError(t, tools.Register(tool.Definition{
		ToolInfo: types.ToolInfo{Name: "fails", Description: "always fails"},
		Run: func(ctx context.Context, args json.RawMessage) (string, error) {
			return "", errors.New("tool broke")
		},
	}))

	cat := catalog.Default()
	policy := retry.New(settings.Retry).
		WithSleeper(func(ctx context.Context, d time.Duration) error { return ctx.Err() })

	return &fixture{
		orch:     New(route.New(cat, reg), reg, tools, policy, settings),
		backends: scripted,
	}
}

func defaultTestSettings() types.Settings {
	s := types.DefaultSettings()
	s.FallbackOrder = []string{"anthropic", "openai", "local"}
	return s
}

func echoCall(id, text string) types.ToolCall {
	args, _ := json.Marshal(map[string]string{"text": text})
	return types.ToolCall{ID: id, Name: "echo", Arguments: args}
}

func TestAskPlainAnswer(t *testing.T) {
	f := newFixture(t, defaultTestSettings(), map[string][]backend.Turn{
		"anthropic": {{Content: "the answer"}},
	})

	resp, err := f.orch.Ask(context.Background(), &types.Request{Prompt: "question", Model: "@fast"})
	require.NoError(t, err)
	assert.Equal(t, "the answer", resp.Content)
	assert.Equal(t, "anthropic", resp.Backend)
	assert.Equal(t, "claude-3-5-haiku-20241022", resp.Model)
	assert.False(t, resp.Partial)
	assert.Empty(t, resp.ToolCalls)
}

func TestToolLoopDispatchCount(t *testing.T) {
	// Two tool-calling rounds before the answer: three dispatches total.
	f := newFixture(t, defaultTestSettings(), map[string][]backend.Turn{
		"anthropic": {
			{ToolCalls: []types.ToolCall{echoCall("c1", "one")}},
			{ToolCalls: []types.ToolCall{echoCall("c2", "two")}},
			{Content: "done"},
		},
	})

	resp, err := f.orch.Ask(context.Background(), &types.Request{
		Prompt: "go",
		Model:  "@fast",
		Tools:  []string{"echo"},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)
	assert.Equal(t, 3, f.backends["anthropic"].Calls())

	// Each round's request carries the accumulated transcript: the
	// assistant tool-call turn plus its tool result.
	reqs := f.backends["anthropic"].Requests()
	require.Len(t, reqs, 3)
	assert.Len(t, reqs[0].Messages, 1)

	second := reqs[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, types.RoleAssistant, second[1].Role)
	require.Len(t, second[1].ToolCalls, 1)
	assert.Equal(t, types.RoleTool, second[2].Role)
	assert.Equal(t, "echo: one", second[2].Content)
	assert.Equal(t, "c1", second[2].ToolCallID)

	require.Len(t, reqs[2].Messages, 5)
	assert.Equal(t, "echo: two", reqs[2].Messages[4].Content)
}

func TestToolLoopBound(t *testing.T) {
	settings := defaultTestSettings()
	settings.MaxToolTurns = 3

	// The model never stops calling tools.
	f := newFixture(t, settings, map[string][]backend.Turn{
		"anthropic": {{ToolCalls: []types.ToolCall{echoCall("c", "again")}}},
	})

	_, err := f.orch.Ask(context.Background(), &types.Request{
		Prompt: "go", Model: "@fast", Tools: []string{"echo"},
	})

	var loopErr *aierrors.ToolLoopExceededError
	require.ErrorAs(t, err, &loopErr)
	assert.Equal(t, 3, loopErr.Turns)
	assert.Equal(t, 3, f.backends["anthropic"].Calls(), "exactly bound dispatches, then the error")
}

func TestToolErrorFedBackNotFatal(t *testing.T) {
	f := newFixture(t, defaultTestSettings(), map[string][]backend.Turn{
		"anthropic": {
			{ToolCalls: []types.ToolCall{{ID: "c1", Name: "fails", Arguments: []byte(`{}`)}}},
			{Content: "recovered"},
		},
	})

	resp, err := f.orch.Ask(context.Background(), &types.Request{
		Prompt: "go", Model: "@fast", Tools: []string{"fails"},
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)

	reqs := f.backends["anthropic"].Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, types.RoleTool, last.Role)
	assert.Contains(t, last.Content, "Error: tool broke")
}

func TestFallbackOnTransientExhaustion(t *testing.T) {
	settings := defaultTestSettings()
	settings.Retry.MaxAttempts = 2

	f := newFixture(t, settings, map[string][]backend.Turn{
		"anthropic": {{Err: &aierrors.TransientError{Backend: "anthropic", Cause: errors.New("overloaded")}}},
		"openai":    {{Content: "fallback answer"}},
	})

	resp, err := f.orch.Ask(context.Background(), &types.Request{Prompt: "q", Model: "@fast"})
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Backend)
	assert.Equal(t, "gpt-4o", resp.Model, "the fallback serves its own equivalent model")
	assert.Equal(t, "fallback answer", resp.Content)
	assert.Equal(t, 2, f.backends["anthropic"].Calls(), "retry budget spent before falling back")
}

func TestAuthErrorAdvancesWithoutRetry(t *testing.T) {
	f := newFixture(t, defaultTestSettings(), map[string][]backend.Turn{
		"anthropic": {{Err: &aierrors.AuthError{Backend: "anthropic", Cause: errors.New("bad key")}}},
		"openai":    {{Content: "ok"}},
	})

	resp, err := f.orch.Ask(context.Background(), &types.Request{Prompt: "q", Model: "@fast"})
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Backend)
	assert.Equal(t, 1, f.backends["anthropic"].Calls())
}

func TestAllCandidatesExhausted(t *testing.T) {
	settings := defaultTestSettings()
	settings.Retry.MaxAttempts = 2

	f := newFixture(t, settings, map[string][]backend.Turn{
		"anthropic": {{Err: fmt.Errorf("anthropic broke")}},
		"openai":    {{Err: fmt.Errorf("openai broke")}},
		"local":     {{Err: fmt.Errorf("local broke")}},
	})

	_, err := f.orch.Ask(context.Background(), &types.Request{Prompt: "q", Model: "@fast"})

	var all *aierrors.AllBackendsFailedError
	require.ErrorAs(t, err, &all)
	require.Len(t, all.Causes, 3, "one cause per candidate")
	assert.Equal(t, "anthropic", all.Causes[0].Backend)
	assert.Equal(t, "openai", all.Causes[1].Backend)
	assert.Equal(t, "local", all.Causes[2].Backend)
	assert.Equal(t, 1, all.Causes[0].Attempts, "non-transient errors burn one attempt")
}

func TestCapabilityPrecheckSkipsBackend(t *testing.T) {
	f := newFixture(t, defaultTestSettings(), map[string][]backend.Turn{
		"anthropic": {{Content: "never reached"}},
		"openai":    {{Content: "tool capable"}},
	})
	f.backends["anthropic"].SetCapabilities(types.CapChat, types.CapStreaming)

	resp, err := f.orch.Ask(context.Background(), &types.Request{
		Prompt: "q", Model: "@fast", Tools: []string{"echo"},
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Backend)
	assert.Zero(t, f.backends["anthropic"].Calls(), "precheck rejects before any dispatch")
}

func TestUnknownToolIsConfigErrorBeforeRouting(t *testing.T) {
	f := newFixture(t, defaultTestSettings(), map[string][]backend.Turn{
		"anthropic": {{Content: "x"}},
	})

	_, err := f.orch.Ask(context.Background(), &types.Request{
		Prompt: "q", Model: "@fast", Tools: []string{"ghost"},
	})
	var cfg *aierrors.ConfigError
	require.ErrorAs(t, err, &cfg)
	assert.Zero(t, f.backends["anthropic"].Calls())
}

func TestDeadlineBecomesRequestTimeout(t *testing.T) {
	settings := defaultTestSettings()
	settings.Retry.MaxAttempts = 5

	f := newFixture(t, settings, map[string][]backend.Turn{
		"anthropic": {{Err: &aierrors.TransientError{Backend: "anthropic", Cause: errors.New("busy")}}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.orch.Ask(ctx, &types.Request{Prompt: "q", Model: "@fast", Timeout: time.Minute})

	var timeout *aierrors.RequestTimeoutError
	if !errors.As(err, &timeout) {
		// Depending on where cancellation lands, plain cancellation is
		// also acceptable; it must not be an AllBackendsFailedError.
		require.ErrorIs(t, err, context.Canceled)
	}
}

func TestUsageAggregatedAcrossRounds(t *testing.T) {
	f := newFixture(t, defaultTestSettings(), map[string][]backend.Turn{
		"anthropic": {
			{ToolCalls: []types.ToolCall{echoCall("c1", "x")}},
			{Content: "final"},
		},
	})

	resp, err := f.orch.Ask(context.Background(), &types.Request{
		Prompt: "q", Model: "@fast", Tools: []string{"echo"},
	})
	require.NoError(t, err)
	// The scripted backend reports OutputTokens=len(content) per round;
	// both rounds must be summed.
	assert.Equal(t, len("final"), resp.Usage.OutputTokens)
	assert.Equal(t, 1+3, resp.Usage.InputTokens)
}

func TestStreamMatchesAsk(t *testing.T) {
	script := map[string][]backend.Turn{
		"anthropic": {{Content: "streamed answer text", ChunkSize: 5}},
	}

	askF := newFixture(t, defaultTestSettings(), script)
	askResp, err := askF.orch.Ask(context.Background(), &types.Request{Prompt: "q", Model: "@fast"})
	require.NoError(t, err)

	streamF := newFixture(t, defaultTestSettings(), script)
	stream := streamF.orch.Stream(context.Background(), &types.Request{Prompt: "q", Model: "@fast"})

	var got string
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got += chunk.Content
	}
	final, err := stream.Final()
	require.NoError(t, err)

	assert.Equal(t, askResp.Content, got, "concatenated chunks equal the blocking answer")
	assert.Equal(t, askResp.Content, final.Content)
	assert.Equal(t, askResp.Backend, final.Backend)
}

func TestStreamSuppressesToolTurnContent(t *testing.T) {
	f := newFixture(t, defaultTestSettings(), map[string][]backend.Turn{
		"anthropic": {
			{ToolCalls: []types.ToolCall{echoCall("c1", "x")}},
			{Content: "only this", ChunkSize: 4},
		},
	})

	stream := f.orch.Stream(context.Background(), &types.Request{
		Prompt: "q", Model: "@fast", Tools: []string{"echo"},
	})

	var got string
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got += chunk.Content
	}
	assert.Equal(t, "only this", got, "tool-call turns emit nothing to the consumer")
	assert.Equal(t, 2, f.backends["anthropic"].Calls())
}

func TestStreamSurfacesErrors(t *testing.T) {
	f := newFixture(t, defaultTestSettings(), map[string][]backend.Turn{})
	// No backends available for the pinned name.
	stream := f.orch.Stream(context.Background(), &types.Request{
		Prompt: "q", Model: "@nope",
	})

	_, err := stream.Recv()
	var cfg *aierrors.ConfigError
	require.ErrorAs(t, err, &cfg)

	_, err = stream.Final()
	assert.ErrorAs(t, err, &cfg)
}

func TestStreamCloseReleases(t *testing.T) {
	f := newFixture(t, defaultTestSettings(), map[string][]backend.Turn{
		"anthropic": {{Content: "a long answer split into many pieces", ChunkSize: 2}},
	})

	stream := f.orch.Stream(context.Background(), &types.Request{Prompt: "q", Model: "@fast"})

	_, err := stream.Recv()
	require.NoError(t, err)
	stream.Close()

	// The producer unwinds; Final returns promptly.
	done := make(chan struct{})
	go func() {
		_, _ = stream.Final()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not release after Close")
	}
}

func TestPinnedBackendNoFallback(t *testing.T) {
	f := newFixture(t, defaultTestSettings(), map[string][]backend.Turn{
		"openai": {{Err: fmt.Errorf("openai broke")}},
		"local":  {{Content: "never"}},
	})

	_, err := f.orch.Ask(context.Background(), &types.Request{
		Prompt: "q", Model: "@cheap", Backend: "openai",
	})

	var all *aierrors.AllBackendsFailedError
	require.ErrorAs(t, err, &all)
	require.Len(t, all.Causes, 1)
	assert.Equal(t, "openai", all.Causes[0].Backend)
	assert.Zero(t, f.backends["local"].Calls())
}

func TestStreamHoldsToolTurnLeadingProse(t *testing.T) {
	// Prose leading into a tool call belongs to the loop, not the consumer;
	// the streamed output must match what Ask would have answered.
	script := map[string][]backend.Turn{
		"anthropic": {
			{Content: "let me check", ToolCalls: []types.ToolCall{echoCall("c1", "x")}, ChunkSize: 4},
			{Content: "checked: fine", ChunkSize: 3},
		},
	}

	askF := newFixture(t, defaultTestSettings(), script)
	askResp, err := askF.orch.Ask(context.Background(), &types.Request{
		Prompt: "q", Model: "@fast", Tools: []string{"echo"},
	})
	require.NoError(t, err)

	streamF := newFixture(t, defaultTestSettings(), script)
	stream := streamF.orch.Stream(context.Background(), &types.Request{
		Prompt: "q", Model: "@fast", Tools: []string{"echo"},
	})

	var got string
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got += chunk.Content
	}
	final, err := stream.Final()
	require.NoError(t, err)

	assert.Equal(t, "checked: fine", got)
	assert.Equal(t, askResp.Content, got)
	assert.Equal(t, askResp.Content, final.Content)
}

func TestAggregatorReassemblesInterleavedToolCalls(t *testing.T) {
	// Fragments for two calls interleave across frames; each must
	// reassemble under its own stream index.
	agg := newAggregator()
	agg.add(&types.Chunk{ToolCallDelta: &types.ToolCallDelta{Index: 0, ID: "call_a", Name: "alpha", Arguments: `{"x":`}})
	agg.add(&types.Chunk{ToolCallDelta: &types.ToolCallDelta{Index: 1, ID: "call_b", Name: "beta", Arguments: `{"y":`}})
	agg.add(&types.Chunk{ToolCallDelta: &types.ToolCallDelta{Index: 0, Arguments: `1}`}})
	agg.add(&types.Chunk{ToolCallDelta: &types.ToolCallDelta{Index: 1, Arguments: `2}`}})
	agg.add(&types.Chunk{Done: true, FinishReason: "tool_calls"})

	resp := agg.response("m", "anthropic")
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, "call_a", resp.ToolCalls[0].ID)
	assert.Equal(t, "alpha", resp.ToolCalls[0].Name)
	assert.Equal(t, `{"x":1}`, string(resp.ToolCalls[0].Arguments))
	assert.Equal(t, "call_b", resp.ToolCalls[1].ID)
	assert.Equal(t, `{"y":2}`, string(resp.ToolCalls[1].Arguments))
	assert.True(t, resp.Partial)
}
