package backend

import (
	"context"
	"errors"
	"strings"

	"github.com/unillm/unillm/pkg/aierrors"
)

// classifyErr maps a provider error onto the retry taxonomy. Timeouts,
// rate limits and server-side failures become TransientError; credential
// rejections become AuthError; anything else passes through and advances
// the fallback chain without retry.
func classifyErr(name string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &aierrors.TransientError{Backend: name, Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401"),
		strings.Contains(msg, "403"),
		strings.Contains(msg, "api key"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "authentication"):
		return &aierrors.AuthError{Backend: name, Cause: err}

	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "overloaded"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "temporarily"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "504"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"):
		return &aierrors.TransientError{Backend: name, Cause: err}
	}
	return err
}

// rejectTools returns the capability error for tool-bearing requests
// against backends without tool support.
func rejectTools(name string) error {
	return &aierrors.CapabilityError{Backend: name, Capability: "tool calling"}
}
