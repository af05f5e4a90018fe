package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unillm/unillm/pkg/aierrors"
	"github.com/unillm/unillm/pkg/types"
)

func testPolicy(cfg types.RetrySettings) (*Policy, *[]time.Duration) {
	var delays []time.Duration
	p := New(cfg).WithSleeper(func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	})
	return p, &delays
}

func TestTransientRetriedUntilBudget(t *testing.T) {
	p, delays := testPolicy(types.RetrySettings{MaxAttempts: 3})

	calls := 0
	transient := &aierrors.TransientError{Backend: "b", Cause: errors.New("rate limited")}
	_, attempts, err := p.Attempt(context.Background(), "req", "b",
		func(ctx context.Context) (*types.AIResponse, error) {
			calls++
			return nil, transient
		})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attempts)
	assert.Len(t, *delays, 2, "no sleep after the final attempt")
	assert.True(t, aierrors.IsTransient(err))
}

func TestDelaysNeverDecreaseBeyondJitter(t *testing.T) {
	p, delays := testPolicy(types.RetrySettings{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		Multiplier:  2.0,
	})

	_, _, err := p.Attempt(context.Background(), "req", "b",
		func(ctx context.Context) (*types.AIResponse, error) {
			return nil, &aierrors.TransientError{Backend: "b", Cause: errors.New("busy")}
		})
	require.Error(t, err)
	require.Len(t, *delays, 4)

	// With 25% jitter, each delay's floor exceeds the previous ceiling
	// divided by the multiplier; the schedule trends strictly upward.
	for i := 1; i < len(*delays); i++ {
		assert.Greater(t, (*delays)[i].Seconds(), (*delays)[i-1].Seconds()/2,
			"delay %d regressed: %v after %v", i, (*delays)[i], (*delays)[i-1])
	}
}

func TestNonTransientFailsImmediately(t *testing.T) {
	p, delays := testPolicy(types.RetrySettings{MaxAttempts: 3})

	calls := 0
	authErr := &aierrors.AuthError{Backend: "b", Cause: errors.New("bad key")}
	_, attempts, err := p.Attempt(context.Background(), "req", "b",
		func(ctx context.Context) (*types.AIResponse, error) {
			calls++
			return nil, authErr
		})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, *delays)

	var ae *aierrors.AuthError
	assert.ErrorAs(t, err, &ae)
}

func TestSuccessAfterTransient(t *testing.T) {
	p, _ := testPolicy(types.RetrySettings{MaxAttempts: 3})

	calls := 0
	resp, attempts, err := p.Attempt(context.Background(), "req", "b",
		func(ctx context.Context) (*types.AIResponse, error) {
			calls++
			if calls < 2 {
				return nil, &aierrors.TransientError{Backend: "b", Cause: errors.New("flake")}
			}
			return &types.AIResponse{Content: "ok"}, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "ok", resp.Content)
}

func TestExpiredContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := New(types.RetrySettings{MaxAttempts: 3}).
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			return ctx.Err()
		})

	_, _, err := p.Attempt(ctx, "req", "b",
		func(ctx context.Context) (*types.AIResponse, error) {
			cancel()
			return nil, &aierrors.TransientError{Backend: "b", Cause: errors.New("flake")}
		})

	var timeout *aierrors.RequestTimeoutError
	require.ErrorAs(t, err, &timeout)
}

func TestStateExhausted(t *testing.T) {
	var s State
	s.Record("anthropic", "claude-3-5-haiku-20241022", 3, errors.New("down"))
	s.Record("openai", "gpt-4o-mini", 1, errors.New("bad key"))

	err := s.Exhausted()
	var all *aierrors.AllBackendsFailedError
	require.ErrorAs(t, err, &all)
	require.Len(t, all.Causes, 2)
	assert.Equal(t, "anthropic", all.Causes[0].Backend)
	assert.Equal(t, 3, all.Causes[0].Attempts)
	assert.Equal(t, "openai", all.Causes[1].Backend)
}
