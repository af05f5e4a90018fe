package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/unillm/unillm/internal/backend"
	"github.com/unillm/unillm/internal/event"
	"github.com/unillm/unillm/internal/logging"
	"github.com/unillm/unillm/internal/retry"
	"github.com/unillm/unillm/pkg/types"
)

// Stream is the consumer side of a streaming request. Chunks carry the
// final answer's content increments; tool-call turns are folded into the
// orchestration loop and never surface here. After Recv returns io.EOF,
// Final returns the aggregate response.
type Stream struct {
	chunks chan types.Chunk
	done   chan struct{}
	cancel context.CancelFunc

	// written by the run goroutine before done closes
	final *types.AIResponse
	err   error
}

// Recv returns the next content chunk, io.EOF after the last one, or the
// request's terminal error.
func (s *Stream) Recv() (*types.Chunk, error) {
	c, ok := <-s.chunks
	if !ok {
		<-s.done
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	return &c, nil
}

// Final blocks until the stream ends and returns the aggregate response.
// Concatenating every Recv chunk yields exactly Final().Content.
func (s *Stream) Final() (*types.AIResponse, error) {
	<-s.done
	return s.final, s.err
}

// Close abandons the stream. The producing goroutine notices within one
// chunk and releases its backend stream. Safe to call more than once.
func (s *Stream) Close() {
	s.cancel()
	for range s.chunks {
		// drain so the producer is never stuck on send
	}
}

// Stream runs one request, emitting final-answer content incrementally.
// Routing and backend errors surface through Recv and Final rather than
// here; the call itself never blocks on the backend.
func (o *Orchestrator) Stream(ctx context.Context, req *types.Request) *Stream {
	requestID := ulid.Make().String()
	ctx, cancel := context.WithCancel(ctx)

	s := &Stream{
		chunks: make(chan types.Chunk),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	event.Publish(event.Event{
		Type: event.RequestStarted,
		Data: event.RequestData{RequestID: requestID, Model: req.Model},
	})

	go func() {
		started := time.Now()
		emit := func(c types.Chunk) bool {
			select {
			case s.chunks <- c:
				if c.Content != "" {
					event.Publish(event.Event{
						Type: event.StreamDelta,
						Data: event.DeltaData{RequestID: requestID, Content: c.Content},
					})
				}
				return true
			case <-ctx.Done():
				return false
			}
		}

		resp, err := o.run(ctx, requestID, req, emit)
		s.final = resp
		s.err = err
		close(s.chunks)
		close(s.done)
		cancel()

		finish := event.RequestData{RequestID: requestID, Err: err}
		if resp != nil {
			finish.Model = resp.Model
			finish.Backend = resp.Backend
		}
		event.Publish(event.Event{Type: event.RequestFinished, Data: finish})
		logger := logging.Component("orchestrator")
		logger.Debug().
			Str("request", requestID).
			Dur("elapsed", time.Since(started)).
			Err(err).
			Msg("stream finished")
	}()

	return s
}

// streamTurn performs one dispatch round over the backend's stream. The
// retry policy wraps stream establishment only; once chunks flow, a
// failure surfaces to the caller rather than replaying partial output.
func (o *Orchestrator) streamTurn(
	ctx context.Context,
	requestID string,
	b backend.Backend,
	breq *backend.Request,
	emit func(types.Chunk) bool,
) (*types.AIResponse, int, error) {
	cs, attempts, err := retry.Do(ctx, o.policy, requestID, b.Name(),
		func(ctx context.Context) (backend.ChunkStream, error) {
			return b.Stream(ctx, breq)
		})
	if err != nil {
		return nil, attempts, err
	}
	defer cs.Close()

	// A turn that may call tools holds its content back until the turn's
	// shape is known: prose leading into a tool call belongs to the loop,
	// not the consumer, and must not leak before the deltas arrive. Turns
	// without tools forward content live.
	hold := len(breq.Tools) > 0
	var held []string

	agg := newAggregator()
	for {
		chunk, err := cs.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, attempts, err
		}

		agg.add(chunk)

		if chunk.Content != "" && !agg.toolTurn() {
			if hold {
				held = append(held, chunk.Content)
			} else if !emit(types.Chunk{Content: chunk.Content}) {
				return nil, attempts, ctx.Err()
			}
		}
		if chunk.Done {
			break
		}
	}

	if hold && !agg.toolTurn() {
		for _, content := range held {
			if !emit(types.Chunk{Content: content}) {
				return nil, attempts, ctx.Err()
			}
		}
	}

	return agg.response(breq.Model, b.Name()), attempts, nil
}

// aggregator folds a chunk sequence into one AIResponse, reassembling
// tool calls from their interleaved deltas.
type aggregator struct {
	content strings.Builder
	calls   []pendingCall
	byIndex map[int]int
	usage   types.Usage
	finish  string
}

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

func newAggregator() *aggregator {
	return &aggregator{byIndex: make(map[int]int)}
}

func (a *aggregator) add(c *types.Chunk) {
	a.content.WriteString(c.Content)

	if d := c.ToolCallDelta; d != nil {
		slot, ok := a.byIndex[d.Index]
		if !ok {
			slot = len(a.calls)
			a.calls = append(a.calls, pendingCall{})
			a.byIndex[d.Index] = slot
		}
		pc := &a.calls[slot]
		if d.ID != "" {
			pc.id = d.ID
		}
		if d.Name != "" {
			pc.name = d.Name
		}
		// Argument fragments concatenate across frames.
		pc.args.WriteString(d.Arguments)
	}

	if c.Usage != nil {
		a.usage.InputTokens += c.Usage.InputTokens
		a.usage.OutputTokens += c.Usage.OutputTokens
	}
	if c.FinishReason != "" {
		a.finish = c.FinishReason
	}
}

// toolTurn reports whether any tool-call delta has arrived yet.
func (a *aggregator) toolTurn() bool { return len(a.calls) > 0 }

func (a *aggregator) response(model, backendName string) *types.AIResponse {
	resp := &types.AIResponse{
		Content:      a.content.String(),
		Model:        model,
		Backend:      backendName,
		Usage:        a.usage,
		FinishReason: a.finish,
	}
	for _, pc := range a.calls {
		resp.ToolCalls = append(resp.ToolCalls, types.ToolCall{
			ID:        pc.id,
			Name:      pc.name,
			Arguments: []byte(pc.args.String()),
		})
	}
	if len(resp.ToolCalls) > 0 {
		resp.Partial = true
		if resp.FinishReason == "" {
			resp.FinishReason = "tool_calls"
		}
	}
	return resp
}
