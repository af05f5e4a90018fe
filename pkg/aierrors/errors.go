// Package aierrors defines the typed error taxonomy shared by the
// orchestration core, the library surface, and the CLI. Callers classify
// failures with errors.As; the core never exits the process on its own.
package aierrors

import (
	"errors"
	"fmt"
	"strings"
)

// Category names an error class for serialization and exit-code mapping.
type Category string

const (
	CategoryConfig        Category = "config"
	CategoryUnavailable   Category = "backend_unavailable"
	CategoryCapability    Category = "capability"
	CategoryTool          Category = "tool_execution"
	CategoryToolLoop      Category = "tool_loop_exceeded"
	CategoryTimeout       Category = "timeout"
	CategoryAllFailed     Category = "all_backends_failed"
	CategoryTransient     Category = "transient"
	CategoryAuthorization Category = "auth"
)

// ConfigError reports a bad model or alias reference, or otherwise
// unusable resolved configuration.
type ConfigError struct {
	Ref     string
	Message string

	// Suggestions holds near-miss aliases for "did you mean" output.
	Suggestions []string
}

func (e *ConfigError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = fmt.Sprintf("unknown model or alias %q", e.Ref)
	}
	if len(e.Suggestions) > 0 {
		msg += " (did you mean " + strings.Join(e.Suggestions, ", ") + "?)"
	}
	return msg
}

// BackendUnavailableError means routing produced no candidate with an
// available backend. Raised before any network-equivalent call.
type BackendUnavailableError struct {
	Model   string
	Checked []string
}

func (e *BackendUnavailableError) Error() string {
	if len(e.Checked) == 0 {
		return fmt.Sprintf("no backend available for model %q", e.Model)
	}
	return fmt.Sprintf("no backend available for model %q (checked: %s)",
		e.Model, strings.Join(e.Checked, ", "))
}

// CapabilityError reports a backend rejecting a request it cannot serve,
// such as tool-bearing requests against a backend without tool support.
type CapabilityError struct {
	Backend    string
	Capability string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("backend %q does not support %s", e.Backend, e.Capability)
}

// ToolExecutionError is fatal for one tool call: the referenced tool does
// not exist or failed in a way that cannot be surfaced as a result.
type ToolExecutionError struct {
	Tool   string
	CallID string
	Cause  error
}

func (e *ToolExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tool %q: %v", e.Tool, e.Cause)
	}
	return fmt.Sprintf("unknown tool %q", e.Tool)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }

// ToolLoopExceededError means the dispatch/tool cycle hit its configured
// bound without the model producing a final answer.
type ToolLoopExceededError struct {
	Turns int
}

func (e *ToolLoopExceededError) Error() string {
	return fmt.Sprintf("tool loop exceeded %d turns without a final answer", e.Turns)
}

// RequestTimeoutError means the overall request deadline expired with no
// retry budget left.
type RequestTimeoutError struct {
	Cause error
}

func (e *RequestTimeoutError) Error() string { return "request deadline exceeded" }

func (e *RequestTimeoutError) Unwrap() error { return e.Cause }

// AttemptError records one failed candidate for diagnostics.
type AttemptError struct {
	Backend  string
	Model    string
	Attempts int
	Err      error
}

func (e AttemptError) Error() string {
	return fmt.Sprintf("%s/%s after %d attempt(s): %v", e.Backend, e.Model, e.Attempts, e.Err)
}

func (e AttemptError) Unwrap() error { return e.Err }

// AllBackendsFailedError means every routing candidate was exhausted. It
// carries one recorded cause per candidate, in attempt order.
type AllBackendsFailedError struct {
	Causes []AttemptError
}

func (e *AllBackendsFailedError) Error() string {
	parts := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		parts[i] = c.Error()
	}
	return "all backends failed: " + strings.Join(parts, "; ")
}

// TransientError wraps a failure that may succeed on retry: timeouts,
// rate limits, 5xx-equivalents. Backend adapters produce these so the
// retry engine can classify without provider knowledge.
type TransientError struct {
	Backend string
	Cause   error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure on %s: %v", e.Backend, e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// AuthError reports rejected credentials; never retried on the same
// candidate.
type AuthError struct {
	Backend string
	Cause   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Backend, e.Cause)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// IsTransient reports whether the retry engine should retry the same
// candidate. Everything else advances to the next candidate.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var rte *RequestTimeoutError
	return errors.As(err, &rte)
}

// Categorize maps an error to its taxonomy category for serialization.
func Categorize(err error) Category {
	switch {
	case errsAs[*ConfigError](err):
		return CategoryConfig
	case errsAs[*BackendUnavailableError](err):
		return CategoryUnavailable
	case errsAs[*CapabilityError](err):
		return CategoryCapability
	case errsAs[*ToolLoopExceededError](err):
		return CategoryToolLoop
	case errsAs[*ToolExecutionError](err):
		return CategoryTool
	case errsAs[*RequestTimeoutError](err):
		return CategoryTimeout
	case errsAs[*AllBackendsFailedError](err):
		return CategoryAllFailed
	case errsAs[*AuthError](err):
		return CategoryAuthorization
	case errsAs[*TransientError](err):
		return CategoryTransient
	default:
		return Category("internal")
	}
}

func errsAs[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
