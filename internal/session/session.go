// Package session layers conversational state over the orchestrator:
// history accumulation, context-window trimming, and the guarantee that
// failed requests leave the transcript untouched.
package session

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/unillm/unillm/internal/catalog"
	"github.com/unillm/unillm/internal/logging"
	"github.com/unillm/unillm/internal/orchestrator"
	"github.com/unillm/unillm/pkg/types"
)

// charsPerToken is the rough estimate used for window trimming. Precise
// tokenization is provider-specific; oversizing the estimate only trims
// a little early.
const charsPerToken = 4

// Session is one multi-turn conversation. Not safe for concurrent use:
// interleaved Ask calls would interleave the transcript.
type Session struct {
	ID     string
	Model  string
	System string

	orch    *orchestrator.Orchestrator
	catalog *catalog.Registry

	// mu guards history; the streaming commit lands from a goroutine.
	mu      sync.Mutex
	history []types.Message
}

// New creates a session. model may be empty to use the configured
// default, or any model ID or @alias.
func New(orch *orchestrator.Orchestrator, cat *catalog.Registry, model, system string) *Session {
	return &Session{
		ID:      ulid.Make().String(),
		Model:   model,
		System:  system,
		orch:    orch,
		catalog: cat,
	}
}

// History returns a copy of the transcript so far, oldest first.
func (s *Session) History() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Reset clears the transcript while keeping model and system prompt.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// Ask sends the prompt with accumulated history. On success both the user
// prompt and the assistant's answer are appended; on failure the
// transcript is structurally identical to before the call, so a retry
// does not duplicate the user turn.
func (s *Session) Ask(ctx context.Context, prompt string, opts ...Option) (*types.AIResponse, error) {
	req := s.buildRequest(prompt, opts)

	resp, err := s.orch.Ask(ctx, req)
	if err != nil {
		return nil, err
	}

	s.commit(prompt, resp.Content)
	return resp, nil
}

// Stream is Ask with incremental output. The transcript commits only
// once the stream finishes cleanly; Final reports the outcome.
func (s *Session) Stream(ctx context.Context, prompt string, opts ...Option) *orchestrator.Stream {
	req := s.buildRequest(prompt, opts)

	stream := s.orch.Stream(ctx, req)
	go func() {
		if resp, err := stream.Final(); err == nil {
			s.commit(prompt, resp.Content)
		}
	}()
	return stream
}

// Option adjusts one request without changing session defaults.
type Option func(*types.Request)

// WithTools enables the named registered tools for this turn.
func WithTools(names ...string) Option {
	return func(r *types.Request) { r.Tools = names }
}

// WithMaxTokens caps the response length for this turn.
func WithMaxTokens(n int) Option {
	return func(r *types.Request) { r.MaxTokens = n }
}

// WithTemperature overrides sampling temperature for this turn.
func WithTemperature(t float64) Option {
	return func(r *types.Request) { r.Temperature = &t }
}

func (s *Session) buildRequest(prompt string, opts []Option) *types.Request {
	req := &types.Request{
		Prompt:   prompt,
		Model:    s.Model,
		System:   s.System,
		Messages: s.trimmed(prompt),
	}
	for _, opt := range opts {
		opt(req)
	}
	return req
}

func (s *Session) commit(prompt, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		types.Message{Role: types.RoleUser, Content: prompt},
		types.Message{Role: types.RoleAssistant, Content: answer},
	)
}

// trimmed returns the history to send, dropping the oldest turns when
// the estimated token count would not fit the model's context window.
// The system prompt and the newest turns always survive.
func (s *Session) trimmed(prompt string) []types.Message {
	window := s.contextWindow()
	if window <= 0 {
		return s.History()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	budget := window * charsPerToken
	used := len(prompt) + len(s.System)

	// Walk newest to oldest, keeping whole turns while they fit.
	keepFrom := len(s.history)
	for i := len(s.history) - 1; i >= 0; i-- {
		used += len(s.history[i].Content)
		if used > budget {
			break
		}
		keepFrom = i
	}

	if keepFrom > 0 && keepFrom < len(s.history) {
		// Never lead with an orphaned assistant or tool message.
		for keepFrom < len(s.history) && s.history[keepFrom].Role != types.RoleUser {
			keepFrom++
		}
	}
	if keepFrom > 0 {
		logger := logging.Component("session")
		logger.Debug().
			Str("session", s.ID).
			Int("dropped", keepFrom).
			Msg("trimmed oldest messages to fit context window")
	}

	out := make([]types.Message, len(s.history)-keepFrom)
	copy(out, s.history[keepFrom:])
	return out
}

// contextWindow resolves the session model's context length; zero when
// the model is unknown (no trimming then).
func (s *Session) contextWindow() int {
	if s.catalog == nil || s.Model == "" {
		return 0
	}
	spec, err := s.catalog.Resolve(s.Model)
	if err != nil {
		return 0
	}
	return spec.ContextLength
}
