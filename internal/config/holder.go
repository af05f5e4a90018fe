package config

import (
	"sync"

	"github.com/unillm/unillm/pkg/types"
)

// Holder is a process-wide settings slot. Reads are concurrent and see
// a complete snapshot; Replace swaps the whole snapshot at once, so a
// reader never observes a half-applied reconfiguration.
type Holder struct {
	mu       sync.RWMutex
	settings types.Settings
	set      bool
}

// NewHolder returns an empty holder.
func NewHolder() *Holder { return &Holder{} }

// Current returns the held snapshot and whether one has been installed.
func (h *Holder) Current() (types.Settings, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.settings, h.set
}

// Replace installs a new snapshot. Requests already running keep the
// settings they started with.
func (h *Holder) Replace(s types.Settings) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settings = s
	h.set = true
}
