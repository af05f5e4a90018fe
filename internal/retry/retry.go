// Package retry implements the per-candidate retry policy and the
// fallback bookkeeping the orchestrator uses across candidates.
//
// Transient failures (timeouts, rate limits, 5xx-equivalents) retry the
// same candidate with exponential backoff and jitter; everything else
// advances immediately to the next candidate. Retry never applies to
// tool execution or routing, only to the backend call itself.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/unillm/unillm/internal/event"
	"github.com/unillm/unillm/internal/logging"
	"github.com/unillm/unillm/pkg/aierrors"
	"github.com/unillm/unillm/pkg/types"
)

// Policy wraps single-candidate invocations with retry.
type Policy struct {
	cfg types.RetrySettings

	// sleep is swappable so tests can observe delays without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a policy from resolved settings. Zero values fall back to
// the package defaults.
func New(cfg types.RetrySettings) *Policy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2.0
	}
	return &Policy{cfg: cfg, sleep: sleepCtx}
}

// WithSleeper replaces the delay function; tests use this to run the
// policy without real waits.
func (p *Policy) WithSleeper(fn func(ctx context.Context, d time.Duration) error) *Policy {
	p.sleep = fn
	return p
}

// newBackOff builds the per-candidate backoff schedule.
func (p *Policy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.BaseDelay
	b.MaxInterval = p.cfg.MaxDelay
	b.Multiplier = p.cfg.Multiplier
	b.RandomizationFactor = 0.25
	b.MaxElapsedTime = 0 // attempts bound the schedule, not wall time
	b.Reset()
	return b
}

// Attempt invokes fn against one candidate, retrying transient failures
// up to the configured attempt budget. It returns the response, the
// number of attempts made (monotonically non-decreasing within the call),
// and the last error when the budget is exhausted or the failure is not
// retryable.
func (p *Policy) Attempt(
	ctx context.Context,
	requestID, backendName string,
	fn func(ctx context.Context) (*types.AIResponse, error),
) (*types.AIResponse, int, error) {
	return Do(ctx, p, requestID, backendName, fn)
}

// Do is the generic form of Attempt; the streaming path uses it to wrap
// stream establishment with the same policy.
func Do[T any](
	ctx context.Context,
	p *Policy,
	requestID, backendName string,
	fn func(ctx context.Context) (T, error),
) (T, int, error) {
	var zero T
	log := logging.Component("retry")
	bo := p.newBackOff()

	attempts := 0
	var lastErr error
	for attempts < p.cfg.MaxAttempts {
		attempts++

		out, err := fn(ctx)
		if err == nil {
			return out, attempts, nil
		}
		lastErr = err

		if !aierrors.IsTransient(err) {
			// Capability, auth and 4xx-equivalent failures advance to the
			// next candidate without burning the retry budget here.
			return zero, attempts, err
		}
		if attempts >= p.cfg.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return zero, attempts, &aierrors.RequestTimeoutError{Cause: ctx.Err()}
		}

		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		log.Debug().
			Str("backend", backendName).
			Int("attempt", attempts).
			Dur("delay", delay).
			Msg("retrying after transient failure")
		event.Publish(event.Event{
			Type: event.RetryScheduled,
			Data: event.RetryData{
				RequestID: requestID,
				Backend:   backendName,
				Attempt:   attempts,
				DelayMS:   delay.Milliseconds(),
			},
		})

		if err := p.sleep(ctx, delay); err != nil {
			return zero, attempts, &aierrors.RequestTimeoutError{Cause: err}
		}
	}
	return zero, attempts, lastErr
}

// sleepCtx waits without busy-looping and honours cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State tracks fallback progress across candidates for one request.
// Attempt counters only ever grow.
type State struct {
	Causes []aierrors.AttemptError
}

// Record appends one exhausted candidate's failure, in attempt order.
func (s *State) Record(backendName, model string, attempts int, err error) {
	s.Causes = append(s.Causes, aierrors.AttemptError{
		Backend:  backendName,
		Model:    model,
		Attempts: attempts,
		Err:      err,
	})
}

// Exhausted builds the terminal error once every candidate has failed.
func (s *State) Exhausted() error {
	return &aierrors.AllBackendsFailedError{Causes: s.Causes}
}
