// Package orchestrator drives one request end to end: routing, the
// retry-wrapped backend call, the tool-calling loop, and fallback across
// candidates. It owns the control flow; backends, tools and routing stay
// policy-free.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/unillm/unillm/internal/backend"
	"github.com/unillm/unillm/internal/event"
	"github.com/unillm/unillm/internal/logging"
	"github.com/unillm/unillm/internal/retry"
	"github.com/unillm/unillm/internal/route"
	"github.com/unillm/unillm/internal/tool"
	"github.com/unillm/unillm/pkg/aierrors"
	"github.com/unillm/unillm/pkg/types"
)

// Orchestrator executes requests against the resolved candidate list.
// Safe for concurrent use; per-request state lives on the stack.
type Orchestrator struct {
	router   *route.Router
	backends *backend.Registry
	tools    *tool.Registry
	exec     *tool.Executor
	policy   *retry.Policy
	settings types.Settings
}

// New creates an orchestrator. Settings are snapshotted; reconfiguration
// builds a new orchestrator rather than mutating a running one.
func New(
	router *route.Router,
	backends *backend.Registry,
	tools *tool.Registry,
	policy *retry.Policy,
	settings types.Settings,
) *Orchestrator {
	return &Orchestrator{
		router:   router,
		backends: backends,
		tools:    tools,
		exec:     tool.NewExecutor(tools),
		policy:   policy,
		settings: settings,
	}
}

// Ask runs one request to completion and returns the final response.
func (o *Orchestrator) Ask(ctx context.Context, req *types.Request) (*types.AIResponse, error) {
	requestID := ulid.Make().String()
	started := time.Now()

	event.Publish(event.Event{
		Type: event.RequestStarted,
		Data: event.RequestData{RequestID: requestID, Model: req.Model},
	})

	resp, err := o.run(ctx, requestID, req, nil)

	finish := event.RequestData{RequestID: requestID}
	log := logging.Component("orchestrator").With().
		Str("request", requestID).
		Dur("elapsed", time.Since(started)).
		Logger()
	if err != nil {
		finish.Err = err
		log.Warn().Err(err).Msg("request failed")
	} else {
		finish.Model = resp.Model
		finish.Backend = resp.Backend
		log.Debug().
			Str("backend", resp.Backend).
			Str("model", resp.Model).
			Int("tokens", resp.Usage.Total()).
			Msg("request finished")
	}
	event.Publish(event.Event{Type: event.RequestFinished, Data: finish})

	return resp, err
}

// run is the shared execution path for Ask and Stream. A nil emit means
// non-streaming; otherwise emit receives final-answer content deltas and
// returns false when the consumer has gone away.
func (o *Orchestrator) run(
	ctx context.Context,
	requestID string,
	req *types.Request,
	emit func(types.Chunk) bool,
) (*types.AIResponse, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = o.settings.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	toolInfos, err := o.tools.Infos(req.Tools)
	if err != nil {
		return nil, err
	}

	modelRef := req.Model
	if modelRef == "" {
		modelRef = o.settings.DefaultModel
	}
	candidates, err := o.router.Resolve(ctx, modelRef, req, o.settings.Rules, o.settings.FallbackOrder)
	if err != nil {
		return nil, err
	}

	msgs := buildMessages(req)

	// Once content has reached the consumer, a later failure must not
	// fall back and replay the answer from the start.
	emitted := false
	if emit != nil {
		inner := emit
		emit = func(c types.Chunk) bool {
			emitted = true
			return inner(c)
		}
	}

	log := logging.Component("orchestrator")
	state := &retry.State{}
	for i, cand := range candidates {
		if i > 0 {
			log.Info().
				Str("request", requestID).
				Str("from", candidates[i-1].Backend).
				Str("to", cand.Backend).
				Msg("falling back to next candidate")
			event.Publish(event.Event{
				Type: event.FallbackAdvanced,
				Data: event.FallbackData{
					RequestID: requestID,
					From:      candidates[i-1].Backend,
					To:        cand.Backend,
				},
			})
		}

		b, ok := o.backends.Get(cand.Backend)
		if !ok {
			// Routing raced a deregistration; treat like any failed candidate.
			state.Record(cand.Backend, cand.Model.ID, 0,
				&aierrors.BackendUnavailableError{Model: cand.Model.ID, Checked: []string{cand.Backend}})
			continue
		}
		if precheck := o.precheck(b, toolInfos, emit != nil); precheck != nil {
			state.Record(cand.Backend, cand.Model.ID, 0, precheck)
			continue
		}

		resp, attempts, err := o.converse(ctx, requestID, b, cand.Model, req, toolInfos, &msgs, emit)
		if err == nil {
			return resp, nil
		}
		if terminal(err) || emitted {
			return nil, err
		}
		state.Record(cand.Backend, cand.Model.ID, attempts, err)
	}

	if ctx.Err() != nil {
		return nil, &aierrors.RequestTimeoutError{Cause: ctx.Err()}
	}
	return nil, state.Exhausted()
}

// precheck rejects a candidate whose backend cannot serve the request
// shape, before spending any retry budget on it.
func (o *Orchestrator) precheck(b backend.Backend, toolInfos []types.ToolInfo, streaming bool) error {
	if len(toolInfos) > 0 && !backend.Supports(b, types.CapTools) {
		return &aierrors.CapabilityError{Backend: b.Name(), Capability: "tools"}
	}
	if streaming && !backend.Supports(b, types.CapStreaming) {
		return &aierrors.CapabilityError{Backend: b.Name(), Capability: "streaming"}
	}
	return nil
}

// converse runs the dispatch/tool cycle against one candidate until the
// model answers, the turn bound trips, or the backend fails out.
//
// msgs is shared across candidates: tool results accumulated here survive
// a mid-loop fallback, so the next candidate resumes the conversation
// instead of restarting it.
func (o *Orchestrator) converse(
	ctx context.Context,
	requestID string,
	b backend.Backend,
	spec types.ModelSpec,
	req *types.Request,
	toolInfos []types.ToolInfo,
	msgs *[]types.Message,
	emit func(types.Chunk) bool,
) (*types.AIResponse, int, error) {
	maxTurns := o.settings.MaxToolTurns
	if maxTurns <= 0 {
		maxTurns = 10
	}

	var usage types.Usage
	totalAttempts := 0

	for turn := 1; ; turn++ {
		if turn > maxTurns {
			return nil, totalAttempts, &aierrors.ToolLoopExceededError{Turns: maxTurns}
		}

		breq := &backend.Request{
			Model:       spec.ID,
			Messages:    *msgs,
			Tools:       toolInfos,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		}

		var (
			resp     *types.AIResponse
			attempts int
			err      error
		)
		if emit == nil {
			resp, attempts, err = o.policy.Attempt(ctx, requestID, b.Name(),
				func(ctx context.Context) (*types.AIResponse, error) {
					return b.Complete(ctx, breq)
				})
		} else {
			resp, attempts, err = o.streamTurn(ctx, requestID, b, breq, emit)
		}
		totalAttempts += attempts
		if err != nil {
			return nil, totalAttempts, err
		}

		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens

		if len(resp.ToolCalls) == 0 {
			resp.Model = spec.ID
			resp.Backend = b.Name()
			resp.Usage = usage
			resp.Partial = false
			return resp, totalAttempts, nil
		}

		*msgs = append(*msgs, types.Message{
			Role:      types.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		results := o.exec.Execute(ctx, requestID, resp.ToolCalls)
		for _, r := range results {
			*msgs = append(*msgs, r.Message())
		}
	}
}

// terminal reports errors that end the request outright instead of
// advancing to the next candidate.
func terminal(err error) bool {
	var loop *aierrors.ToolLoopExceededError
	if errors.As(err, &loop) {
		return true
	}
	var timeout *aierrors.RequestTimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	var cfg *aierrors.ConfigError
	if errors.As(err, &cfg) {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// buildMessages assembles the turn-one conversation: optional system
// message, prior history, then the prompt as a user message unless the
// history already ends with one.
func buildMessages(req *types.Request) []types.Message {
	msgs := make([]types.Message, 0, len(req.Messages)+2)
	if req.System != "" {
		msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: req.System})
	}
	msgs = append(msgs, req.Messages...)

	if n := len(msgs); n > 0 && msgs[n-1].Role == types.RoleUser {
		return msgs
	}
	if req.Prompt != "" {
		msgs = append(msgs, req.UserMessage())
	}
	return msgs
}
