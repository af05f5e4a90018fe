// Package backend defines the adapter contract for LLM providers and the
// registry that tracks adapter availability. Adapters own their provider
// protocol; the core depends only on this contract.
package backend

import (
	"context"

	"github.com/unillm/unillm/pkg/types"
)

// Request is a single completion request against one backend. The
// orchestrator builds it from resolved routing state; Model is always a
// concrete model ID, never an alias.
type Request struct {
	Model       string
	Messages    []types.Message
	Tools       []types.ToolInfo
	MaxTokens   int
	Temperature *float64
}

// ChunkStream is a forward-only, single-pass sequence of output chunks.
// Recv returns io.EOF after the final chunk. Close releases the upstream
// resource and is safe to call at any point, including mid-stream.
type ChunkStream interface {
	Recv() (*types.Chunk, error)
	Close()
}

// Backend is one provider adapter. Implementations must be safe for
// concurrent use by multiple in-flight requests.
type Backend interface {
	// Name returns the backend identifier used in fallback order and
	// routing candidates.
	Name() string

	// Available is a cheap, side-effect-free readiness check. The registry
	// caches the result on a short TTL; implementations need not cache.
	Available(ctx context.Context) bool

	// Capabilities declares what the adapter supports. A backend without
	// CapTools must reject tool-bearing requests with a CapabilityError.
	Capabilities() []types.Capability

	// Complete performs one non-streaming completion.
	Complete(ctx context.Context, req *Request) (*types.AIResponse, error)

	// Stream performs one streaming completion.
	Stream(ctx context.Context, req *Request) (ChunkStream, error)
}

// Supports reports whether the backend declares the capability.
func Supports(b Backend, c types.Capability) bool {
	for _, have := range b.Capabilities() {
		if have == c {
			return true
		}
	}
	return false
}
