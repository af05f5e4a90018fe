// Package catalog holds the static registry of known models, their
// aliases, and capability metadata. Specs are immutable once loaded; the
// registry is safe for concurrent readers.
package catalog

import (
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/unillm/unillm/pkg/aierrors"
	"github.com/unillm/unillm/pkg/types"
)

// Registry is the model catalog.
type Registry struct {
	mu      sync.RWMutex
	specs   map[string]types.ModelSpec
	aliases map[string]string // alias -> model ID, unique across the registry
}

// NewRegistry creates an empty catalog.
func NewRegistry() *Registry {
	return &Registry{
		specs:   make(map[string]types.ModelSpec),
		aliases: make(map[string]string),
	}
}

// Add registers a spec and its aliases. Duplicate aliases are a
// ConfigError; the registry is left unchanged on failure.
func (r *Registry) Add(spec types.ModelSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, alias := range spec.Aliases {
		if existing, ok := r.aliases[alias]; ok && existing != spec.ID {
			return &aierrors.ConfigError{
				Ref:     alias,
				Message: "alias @" + alias + " already maps to " + existing,
			}
		}
	}

	r.specs[spec.ID] = spec
	for _, alias := range spec.Aliases {
		r.aliases[alias] = spec.ID
	}
	return nil
}

// SetAlias registers or overrides a single alias, layered over the specs'
// built-in aliases (configuration-supplied aliases go through here).
func (r *Registry) SetAlias(alias, modelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.specs[modelID]; !ok {
		return &aierrors.ConfigError{Ref: modelID, Message: "alias @" + alias + " targets unknown model " + modelID}
	}
	r.aliases[alias] = modelID
	return nil
}

// Get returns the spec for an exact model ID.
func (r *Registry) Get(id string) (types.ModelSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[id]
	return spec, ok
}

// Resolve maps a model ID or @alias to its spec. Unknown references fail
// with a ConfigError carrying near-miss suggestions.
func (r *Registry) Resolve(ref string) (types.ModelSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id := ref
	if strings.HasPrefix(ref, "@") {
		alias := strings.TrimPrefix(ref, "@")
		target, ok := r.aliases[alias]
		if !ok {
			return types.ModelSpec{}, &aierrors.ConfigError{
				Ref:         ref,
				Suggestions: r.suggestLocked(alias),
			}
		}
		id = target
	}

	spec, ok := r.specs[id]
	if !ok {
		return types.ModelSpec{}, &aierrors.ConfigError{Ref: ref}
	}
	return spec, nil
}

// List returns all specs sorted by provider then ID.
func (r *Registry) List() []types.ModelSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]types.ModelSpec, 0, len(r.specs))
	for _, spec := range r.specs {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool {
		if specs[i].Provider != specs[j].Provider {
			return specs[i].Provider < specs[j].Provider
		}
		return specs[i].ID < specs[j].ID
	})
	return specs
}

// ByProvider returns the provider's specs sorted by quality, best first.
func (r *Registry) ByProvider(provider string) []types.ModelSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var specs []types.ModelSpec
	for _, spec := range r.specs {
		if spec.Provider == provider {
			specs = append(specs, spec)
		}
	}
	sort.Slice(specs, func(i, j int) bool {
		if specs[i].Quality != specs[j].Quality {
			return specs[i].Quality > specs[j].Quality
		}
		return specs[i].ID < specs[j].ID
	})
	return specs
}

// Aliases returns the alias table, alias -> model ID.
func (r *Registry) Aliases() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.aliases))
	for k, v := range r.aliases {
		out[k] = v
	}
	return out
}

// suggestLocked returns up to three aliases within edit distance 3,
// closest first. Callers hold at least a read lock.
func (r *Registry) suggestLocked(miss string) []string {
	type scored struct {
		alias string
		dist  int
	}
	var near []scored
	for alias := range r.aliases {
		d := levenshtein.ComputeDistance(strings.ToLower(miss), strings.ToLower(alias))
		if d <= 3 {
			near = append(near, scored{alias: alias, dist: d})
		}
	}
	sort.Slice(near, func(i, j int) bool {
		if near[i].dist != near[j].dist {
			return near[i].dist < near[j].dist
		}
		return near[i].alias < near[j].alias
	})
	if len(near) > 3 {
		near = near[:3]
	}
	out := make([]string, len(near))
	for i, s := range near {
		out[i] = "@" + s.alias
	}
	return out
}
