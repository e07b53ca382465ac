// Package flags holds process-wide runtime feature toggles. The values are
// owned by a single Flags instance created at startup and handed to the
// components that read them, never referenced as package globals.
package flags

import "sync"

// Flags is the set of runtime-togglable features.
type Flags struct {
	mu              sync.RWMutex
	maintenanceMode bool
	autoAnnounce    bool
}

// New creates a Flags instance seeded with initial values.
func New(maintenanceMode, autoAnnounce bool) *Flags {
	return &Flags{
		maintenanceMode: maintenanceMode,
		autoAnnounce:    autoAnnounce,
	}
}

// MaintenanceMode reports whether maintenance mode is active. While active,
// content delivery is refused to non-administrative callers.
func (f *Flags) MaintenanceMode() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.maintenanceMode
}

// SetMaintenanceMode toggles maintenance mode.
func (f *Flags) SetMaintenanceMode(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maintenanceMode = on
}

// AutoAnnounce reports whether newly cataloged files trigger an enrichment
// announcement to the update channel.
func (f *Flags) AutoAnnounce() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.autoAnnounce
}

// SetAutoAnnounce toggles announcement posting.
func (f *Flags) SetAutoAnnounce(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoAnnounce = on
}
