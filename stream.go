package unillm

import (
	"context"

	"github.com/unillm/unillm/internal/orchestrator"
	"github.com/unillm/unillm/internal/session"
	"github.com/unillm/unillm/pkg/types"
)

// ResponseStream is a streaming response in progress. Recv yields
// content increments; concatenating them reproduces Final().Content
// exactly.
type ResponseStream struct {
	inner *orchestrator.Stream
}

// Recv returns the next content chunk, io.EOF after the last one, or the
// request's terminal error.
func (s *ResponseStream) Recv() (*types.Chunk, error) { return s.inner.Recv() }

// Final blocks until the stream ends and returns the aggregate response.
func (s *ResponseStream) Final() (*types.AIResponse, error) { return s.inner.Final() }

// Close abandons the stream and releases the backend connection.
func (s *ResponseStream) Close() { s.inner.Close() }

// ChatSession is a multi-turn conversation bound to one model and
// system prompt. Not safe for concurrent use.
type ChatSession struct {
	inner *session.Session
}

// Ask sends the prompt with accumulated history and records the exchange
// on success. A failed call leaves the history untouched.
func (c *ChatSession) Ask(ctx context.Context, prompt string, opts ...RequestOption) (*types.AIResponse, error) {
	return c.inner.Ask(ctx, prompt, sessionOpts(opts)...)
}

// Stream is Ask with incremental output; the history commits only once
// the stream finishes cleanly.
func (c *ChatSession) Stream(ctx context.Context, prompt string, opts ...RequestOption) *ResponseStream {
	return &ResponseStream{inner: c.inner.Stream(ctx, prompt, sessionOpts(opts)...)}
}

// History returns a copy of the transcript so far.
func (c *ChatSession) History() []types.Message { return c.inner.History() }

// Reset clears the transcript, keeping model and system prompt.
func (c *ChatSession) Reset() { c.inner.Reset() }

// ID returns the session identifier.
func (c *ChatSession) ID() string { return c.inner.ID }

func sessionOpts(opts []RequestOption) []session.Option {
	out := make([]session.Option, len(opts))
	for i, opt := range opts {
		out[i] = session.Option(opt)
	}
	return out
}
