// Package types defines the shared data model for unillm: messages,
// requests, responses, model metadata, and resolved settings.
package types

// Capability identifies a feature a model or backend supports.
type Capability string

const (
	CapChat      Capability = "chat"
	CapStreaming Capability = "streaming"
	CapTools     Capability = "tools"
	CapVision    Capability = "vision"
)

// Tier is a coarse relative ranking used by routing heuristics.
type Tier int

const (
	TierLow Tier = iota + 1
	TierMedium
	TierHigh
)

// ModelSpec describes one known model. Specs are immutable once loaded
// into the catalog.
type ModelSpec struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Provider      string       `json:"provider"`
	Aliases       []string     `json:"aliases,omitempty"`
	Capabilities  []Capability `json:"capabilities,omitempty"`
	ContextLength int          `json:"contextLength"`
	MaxOutput     int          `json:"maxOutputTokens,omitempty"`

	// Relative tiers, not absolute measurements.
	Cost    Tier `json:"cost,omitempty"`
	Speed   Tier `json:"speed,omitempty"`
	Quality Tier `json:"quality,omitempty"`
}

// Supports reports whether the spec declares the given capability.
func (m ModelSpec) Supports(c Capability) bool {
	for _, have := range m.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}
