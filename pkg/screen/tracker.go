// Package screen holds the name of the currently visible screen.
//
// The UI layer owns screen tracking and is the only writer; telemetry reads
// the latest value on every span start.
package screen

import "sync/atomic"

// Provider supplies the name of the currently foregrounded screen.
type Provider interface {
	// Current returns the visible screen name, or false when none is known.
	Current() (string, bool)
}

// Tracker is a single-writer, multi-reader Provider.
type Tracker struct {
	name atomic.Pointer[string]
}

// NewTracker returns a tracker with no visible screen.
func NewTracker() *Tracker {
	return &Tracker{}
}

// SetVisible records name as the visible screen. An empty name clears it.
func (t *Tracker) SetVisible(name string) {
	if name == "" {
		t.name.Store(nil)
		return
	}
	t.name.Store(&name)
}

// Clear forgets the visible screen.
func (t *Tracker) Clear() {
	t.name.Store(nil)
}

// Current implements Provider.
func (t *Tracker) Current() (string, bool) {
	if p := t.name.Load(); p != nil {
		return *p, true
	}
	return "", false
}
