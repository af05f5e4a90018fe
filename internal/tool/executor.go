package tool

import (
	"context"
	"fmt"
	"sync"

	"github.com/unillm/unillm/internal/event"
	"github.com/unillm/unillm/internal/logging"
	"github.com/unillm/unillm/pkg/aierrors"
	"github.com/unillm/unillm/pkg/types"
)

// Executor runs the tool calls of one orchestration turn.
type Executor struct {
	registry *Registry
}

// NewExecutor creates an executor over the registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Execute dispatches the turn's tool calls concurrently (they originate
// from one model turn, so they are independent by construction) and
// reassembles results in the original ToolCall order regardless of
// completion order.
//
// A tool that returns an error produces a ToolResult carrying the error
// payload; the model reacts to it on its next turn. An unknown tool name
// fails only that call.
func (e *Executor) Execute(ctx context.Context, requestID string, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call types.ToolCall) {
			defer wg.Done()
			results[i] = e.runOne(ctx, requestID, call)
		}(i, call)
	}
	wg.Wait()

	return results
}

func (e *Executor) runOne(ctx context.Context, requestID string, call types.ToolCall) types.ToolResult {
	log := logging.Component("tool")
	result := types.ToolResult{CallID: call.ID, Name: call.Name}

	event.Publish(event.Event{
		Type: event.ToolStarted,
		Data: event.ToolData{RequestID: requestID, CallID: call.ID, Tool: call.Name},
	})

	def, ok := e.registry.Get(call.Name)
	if !ok {
		err := &aierrors.ToolExecutionError{Tool: call.Name, CallID: call.ID}
		result.Error = err.Error()
		log.Warn().Str("tool", call.Name).Str("call", call.ID).Msg("unknown tool requested")
		e.finish(requestID, result)
		return result
	}

	output, err := e.invoke(ctx, def, call)
	if err != nil {
		result.Error = err.Error()
		log.Debug().Str("tool", call.Name).Err(err).Msg("tool returned error")
	} else {
		result.Content = output
	}
	e.finish(requestID, result)
	return result
}

// invoke runs the tool, converting panics into error results so one
// misbehaving tool cannot take down the request.
func (e *Executor) invoke(ctx context.Context, def Definition, call types.ToolCall) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %q panicked: %v", call.Name, r)
		}
	}()
	return def.Run(ctx, call.Arguments)
}

func (e *Executor) finish(requestID string, result types.ToolResult) {
	event.Publish(event.Event{
		Type: event.ToolFinished,
		Data: event.ToolData{
			RequestID: requestID,
			CallID:    result.CallID,
			Tool:      result.Name,
			Err:       result.Error,
		},
	})
}
