package backend

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Descriptor pairs a backend with its registration metadata and cached
// availability. Many routing candidates reference one descriptor.
type Descriptor struct {
	Backend  Backend
	Priority int // lower sorts earlier when no fallback order applies

	mu        sync.Mutex
	available bool
	checkedAt time.Time
}

// Registry holds instantiated backend adapters. Availability reads are
// cached on a short TTL rather than mutated by request outcomes.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Descriptor
	ttl     time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewRegistry creates a registry with the given availability TTL.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Registry{
		entries: make(map[string]*Descriptor),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Register adds or replaces a backend.
func (r *Registry) Register(b Backend, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[b.Name()] = &Descriptor{Backend: b, Priority: priority}
}

// Get returns the backend by name.
func (r *Registry) Get(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return d.Backend, true
}

// Names returns registered backend names sorted by priority then name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type entry struct {
		name     string
		priority int
	}
	entries := make([]entry, 0, len(r.entries))
	for name, d := range r.entries {
		entries = append(entries, entry{name: name, priority: d.Priority})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority < entries[j].priority
		}
		return entries[i].name < entries[j].name
	})

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// Available reports whether the named backend is usable, re-evaluating
// the backend's own predicate only after the TTL expires.
func (r *Registry) Available(ctx context.Context, name string) bool {
	r.mu.RLock()
	d, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if r.now().Sub(d.checkedAt) < r.ttl && !d.checkedAt.IsZero() {
		return d.available
	}
	d.available = d.Backend.Available(ctx)
	d.checkedAt = r.now()
	return d.available
}

// Status reports availability for every registered backend.
func (r *Registry) Status(ctx context.Context) map[string]bool {
	out := make(map[string]bool)
	for _, name := range r.Names() {
		out[name] = r.Available(ctx, name)
	}
	return out
}
