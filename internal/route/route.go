// Package route resolves a requested model or alias, plus declarative
// routing rules, into an ordered list of (backend, model) candidates.
// Resolution is deterministic: identical registry state, rules and input
// always produce the same ordering.
package route

import (
	"context"
	"strings"

	"github.com/unillm/unillm/internal/backend"
	"github.com/unillm/unillm/internal/catalog"
	"github.com/unillm/unillm/internal/logging"
	"github.com/unillm/unillm/pkg/aierrors"
	"github.com/unillm/unillm/pkg/types"
)

// Candidate is one resolved (backend, model) pair in fallback order.
type Candidate struct {
	Backend  string
	Model    types.ModelSpec
	Position int
}

// Router resolves requests against the model catalog and backend registry.
type Router struct {
	catalog  *catalog.Registry
	backends *backend.Registry
}

// New creates a router over the given registries.
func New(cat *catalog.Registry, backends *backend.Registry) *Router {
	return &Router{catalog: cat, backends: backends}
}

// ruleMatches evaluates one declarative rule against the request. Rules
// are pure functions of the request; a rule with no conditions never
// matches.
func ruleMatches(rule types.RuleConfig, req *types.Request) bool {
	if rule.Keyword == "" && rule.MinLength == 0 {
		return false
	}
	if rule.Keyword != "" &&
		!strings.Contains(strings.ToLower(req.Prompt), strings.ToLower(rule.Keyword)) {
		return false
	}
	if rule.MinLength > 0 && len(req.Prompt) < rule.MinLength {
		return false
	}
	return true
}

// Resolve produces the ordered candidate list for a request.
//
// The requested model or alias is resolved first (unknown references are
// a ConfigError). Rules are then evaluated in declaration order; the
// first match's preferred model is prepended as the primary candidate.
// Remaining backends from the fallback order are appended, each paired
// with the best model it serves for the resolved target; backends whose
// availability predicate fails are skipped. An empty result is a
// BackendUnavailableError, raised before any network-equivalent call.
func (r *Router) Resolve(
	ctx context.Context,
	modelOrAlias string,
	req *types.Request,
	rules []types.RuleConfig,
	fallbackOrder []string,
) ([]Candidate, error) {
	target, err := r.catalog.Resolve(modelOrAlias)
	if err != nil {
		return nil, err
	}

	primary := target
	for _, rule := range rules {
		if !ruleMatches(rule, req) {
			continue
		}
		preferred, err := r.catalog.Resolve(rule.Model)
		if err != nil {
			return nil, err
		}
		primary = preferred
		break
	}

	// Pinned backend requests bypass fallback expansion entirely.
	if req != nil && req.Backend != "" {
		return r.resolvePinned(ctx, req.Backend, primary)
	}

	order := candidateOrder(primary.Provider, fallbackOrder)

	var (
		candidates []Candidate
		checked    []string
	)
	seen := make(map[string]bool)
	for _, name := range order {
		if seen[name] {
			continue
		}
		seen[name] = true

		if _, ok := r.backends.Get(name); !ok {
			continue
		}
		checked = append(checked, name)
		if !r.backends.Available(ctx, name) {
			logger := logging.Component("route")
			logger.Debug().
				Str("backend", name).
				Msg("skipping unavailable backend")
			continue
		}

		spec, ok := r.modelFor(name, primary, target)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{
			Backend:  name,
			Model:    spec,
			Position: len(candidates),
		})
	}

	if len(candidates) == 0 {
		return nil, &aierrors.BackendUnavailableError{Model: modelOrAlias, Checked: checked}
	}
	return candidates, nil
}

// resolvePinned returns the single candidate for an explicitly pinned
// backend.
func (r *Router) resolvePinned(ctx context.Context, name string, primary types.ModelSpec) ([]Candidate, error) {
	if _, ok := r.backends.Get(name); !ok {
		return nil, &aierrors.ConfigError{Ref: name, Message: "unknown backend " + name}
	}
	if !r.backends.Available(ctx, name) {
		return nil, &aierrors.BackendUnavailableError{Model: primary.ID, Checked: []string{name}}
	}
	spec, ok := r.modelFor(name, primary, primary)
	if !ok {
		return nil, &aierrors.BackendUnavailableError{Model: primary.ID, Checked: []string{name}}
	}
	return []Candidate{{Backend: name, Model: spec}}, nil
}

// modelFor picks the model a backend serves for the resolved target: the
// primary spec itself when the backend is its provider, otherwise the
// provider's closest equivalent.
func (r *Router) modelFor(backendName string, primary, target types.ModelSpec) (types.ModelSpec, bool) {
	if primary.Provider == backendName {
		return primary, true
	}
	if target.Provider == backendName {
		return target, true
	}
	return r.catalog.Equivalent(backendName, target)
}

// candidateOrder puts the target's own provider first, then the
// configured fallback order.
func candidateOrder(primaryProvider string, fallbackOrder []string) []string {
	order := make([]string, 0, len(fallbackOrder)+1)
	order = append(order, primaryProvider)
	order = append(order, fallbackOrder...)
	return order
}
