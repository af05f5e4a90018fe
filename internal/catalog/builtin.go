package catalog

import "github.com/unillm/unillm/pkg/types"

// Default returns a catalog seeded with the built-in model set and the
// standard aliases (@fast, @best, @cheap, @coding, @local).
func Default() *Registry {
	r := NewRegistry()
	for _, spec := range builtinModels() {
		// Built-in specs carry no conflicting aliases.
		_ = r.Add(spec)
	}
	return r
}

func builtinModels() []types.ModelSpec {
	chatTools := []types.Capability{types.CapChat, types.CapStreaming, types.CapTools}
	full := append([]types.Capability{}, chatTools...)
	full = append(full, types.CapVision)

	return []types.ModelSpec{
		{
			ID:            "claude-sonnet-4-20250514",
			Name:          "Claude Sonnet 4",
			Provider:      "anthropic",
			Aliases:       []string{"best", "coding", "sonnet"},
			Capabilities:  full,
			ContextLength: 200000,
			MaxOutput:     64000,
			Cost:          types.TierMedium,
			Speed:         types.TierMedium,
			Quality:       types.TierHigh,
		},
		{
			ID:            "claude-3-5-haiku-20241022",
			Name:          "Claude 3.5 Haiku",
			Provider:      "anthropic",
			Aliases:       []string{"fast", "haiku"},
			Capabilities:  full,
			ContextLength: 200000,
			MaxOutput:     8192,
			Cost:          types.TierLow,
			Speed:         types.TierHigh,
			Quality:       types.TierMedium,
		},
		{
			ID:            "gpt-4o",
			Name:          "GPT-4o",
			Provider:      "openai",
			Aliases:       []string{"gpt4o"},
			Capabilities:  full,
			ContextLength: 128000,
			MaxOutput:     16384,
			Cost:          types.TierMedium,
			Speed:         types.TierMedium,
			Quality:       types.TierHigh,
		},
		{
			ID:            "gpt-4o-mini",
			Name:          "GPT-4o Mini",
			Provider:      "openai",
			Aliases:       []string{"cheap", "mini"},
			Capabilities:  full,
			ContextLength: 128000,
			MaxOutput:     16384,
			Cost:          types.TierLow,
			Speed:         types.TierHigh,
			Quality:       types.TierMedium,
		},
		{
			ID:            "llama3.1:8b",
			Name:          "Llama 3.1 8B",
			Provider:      "local",
			Aliases:       []string{"local", "llama"},
			Capabilities:  chatTools,
			ContextLength: 32768,
			MaxOutput:     4096,
			Cost:          types.TierLow,
			Speed:         types.TierMedium,
			Quality:       types.TierLow,
		},
	}
}

// Equivalent returns the provider's closest substitute for the target
// spec: same capability set where possible, best quality first. Used when
// a fallback backend does not serve the originally resolved model.
func (r *Registry) Equivalent(provider string, target types.ModelSpec) (types.ModelSpec, bool) {
	candidates := r.ByProvider(provider)
	if len(candidates) == 0 {
		return types.ModelSpec{}, false
	}

	// Prefer a model covering every capability the target declares.
	for _, c := range candidates {
		ok := true
		for _, cap := range target.Capabilities {
			if !c.Supports(cap) {
				ok = false
				break
			}
		}
		if ok {
			return c, true
		}
	}
	return candidates[0], true
}
