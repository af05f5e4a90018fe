// Package tool provides explicit tool registration and the executor that
// runs model-issued tool calls. Registration is the only discovery
// mechanism: the executor consults a name-keyed table, nothing else.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/unillm/unillm/pkg/aierrors"
	"github.com/unillm/unillm/pkg/types"
)

// Func is the executable half of a tool.
type Func func(ctx context.Context, args json.RawMessage) (string, error)

// Definition binds a tool schema to its executable. Definitions are
// registered once and never mutated afterwards.
type Definition struct {
	types.ToolInfo
	Run Func
}

// Registry is the name-keyed tool lookup table.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Definition)}
}

// Register adds a tool. Re-registering an existing name is an error; the
// table never silently swaps executables.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if def.Run == nil {
		return fmt.Errorf("tool %q has no executable", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %q already registered", def.Name)
	}
	r.tools[def.Name] = def
	return nil
}

// Get looks a tool up by name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// Names returns registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Infos resolves the requested tool names into wire schemas. A request
// naming an unregistered tool is a ConfigError before dispatch.
func (r *Registry) Infos(names []string) ([]types.ToolInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]types.ToolInfo, 0, len(names))
	for _, name := range names {
		def, ok := r.tools[name]
		if !ok {
			return nil, &aierrors.ConfigError{Ref: name, Message: fmt.Sprintf("tool %q is not registered", name)}
		}
		infos = append(infos, def.ToolInfo)
	}
	return infos, nil
}
