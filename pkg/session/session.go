// Package session tracks the rotating user session that scopes telemetry.
//
// A Session is an immutable value. The Manager is its only writer: it creates
// the first session lazily, rotates on background timeout or when a session
// outlives its maximum lifetime, and notifies observers about the lifecycle.
// Reads through Provider.Current are lock-free snapshot loads and are safe
// from any goroutine.
package session

import (
	"sync"
	"time"
)

// Lifecycle marker bodies for session log records. Records with these bodies
// carry the id of the session they describe, which may not be the current one.
const (
	StartBody = "session start"
	EndBody   = "session end"
)

// Session identifies a bounded period of user activity.
type Session struct {
	ID string

	// PreviousID is the id of the session this one replaced. Empty for the
	// first session of the process.
	PreviousID string

	StartedAt time.Time
}

// HasPrevious reports whether the session was created by a rotation.
func (s Session) HasPrevious() bool {
	return s.PreviousID != ""
}

// Provider supplies the current session.
type Provider interface {
	Current() Session
}

// Observer receives session lifecycle notifications.
//
// Callbacks run on the goroutine that triggered the transition, after the
// manager has released its lock. Implementations must not block.
type Observer interface {
	SessionStarted(s Session)
	SessionEnded(s Session)
}

// Static is a Provider that always returns the same session.
type Static Session

// Current implements Provider.
func (s Static) Current() Session {
	return Session(s)
}

var (
	defaultManager *Manager
	defaultOnce    sync.Once
)

// Default returns the process-wide manager, creating it with DefaultConfig on
// first use. Prefer passing a Manager explicitly; Default exists for the
// top-level wiring point and for components constructed without a provider.
func Default() *Manager {
	defaultOnce.Do(func() {
		defaultManager = NewManager(DefaultConfig())
	})
	return defaultManager
}
