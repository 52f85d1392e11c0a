package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTimeout is how long the app may stay in the background before
	// returning to the foreground starts a new session.
	DefaultTimeout = 15 * time.Minute

	// DefaultMaxLifetime caps the length of a single session.
	DefaultMaxLifetime = 4 * time.Hour
)

// Config controls session rotation.
type Config struct {
	// Timeout is the background duration after which Foreground rotates.
	Timeout time.Duration

	// MaxLifetime rotates sessions older than this on read. Zero disables it.
	MaxLifetime time.Duration
}

// DefaultConfig returns the default rotation settings.
func DefaultConfig() Config {
	return Config{
		Timeout:     DefaultTimeout,
		MaxLifetime: DefaultMaxLifetime,
	}
}

// Validate checks config for errors.
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("session timeout must be positive")
	}
	if c.MaxLifetime < 0 {
		return errors.New("session max lifetime cannot be negative")
	}
	return nil
}

// Manager owns the current session.
type Manager struct {
	cfg   Config
	now   func() time.Time
	newID func() string

	current atomic.Pointer[Session]

	mu             sync.Mutex
	lastID         string
	backgroundedAt time.Time
	observers      []Observer
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithIDGenerator overrides session id generation (for testing).
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		m.newID = newID
	}
}

// WithObserver registers an observer at construction time.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observers = append(m.observers, o)
	}
}

// NewManager creates a manager. The first session starts on the first call
// to Current, so observers added after construction still see it.
func NewManager(cfg Config, opts ...Option) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	m := &Manager{
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddObserver registers an observer for subsequent transitions.
func (m *Manager) AddObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Current returns the active session, starting or rotating it when needed.
func (m *Manager) Current() Session {
	if s := m.current.Load(); s != nil && !m.expired(s, m.now()) {
		return *s
	}

	m.mu.Lock()
	now := m.now()
	s := m.current.Load()
	if s != nil && !m.expired(s, now) {
		m.mu.Unlock()
		return *s
	}
	ended, started := m.rotateLocked(now)
	observers := m.observersLocked()
	m.mu.Unlock()

	notify(observers, ended, started)
	return *started
}

// Peek returns the active session without starting or rotating one.
func (m *Manager) Peek() (Session, bool) {
	if s := m.current.Load(); s != nil {
		return *s, true
	}
	return Session{}, false
}

// Background records that the app left the foreground.
func (m *Manager) Background() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backgroundedAt.IsZero() {
		m.backgroundedAt = m.now()
	}
}

// Foreground records that the app returned to the foreground. It rotates the
// session when the app spent at least Timeout in the background and reports
// whether it did.
func (m *Manager) Foreground() bool {
	m.mu.Lock()
	now := m.now()
	since := m.backgroundedAt
	m.backgroundedAt = time.Time{}
	if since.IsZero() || now.Sub(since) < m.cfg.Timeout || m.current.Load() == nil {
		m.mu.Unlock()
		return false
	}
	ended, started := m.rotateLocked(now)
	observers := m.observersLocked()
	m.mu.Unlock()

	notify(observers, ended, started)
	return true
}

// End finishes the active session, if any. The next call to Current starts
// a new session whose PreviousID is the ended one.
func (m *Manager) End() {
	m.mu.Lock()
	ended := m.current.Swap(nil)
	if ended != nil {
		m.lastID = ended.ID
	}
	observers := m.observersLocked()
	m.mu.Unlock()

	notify(observers, ended, nil)
}

func (m *Manager) expired(s *Session, now time.Time) bool {
	return m.cfg.MaxLifetime > 0 && now.Sub(s.StartedAt) >= m.cfg.MaxLifetime
}

// rotateLocked replaces the current session. Caller holds m.mu.
func (m *Manager) rotateLocked(now time.Time) (ended, started *Session) {
	ended = m.current.Load()
	previous := m.lastID
	if ended != nil {
		previous = ended.ID
	}
	started = &Session{
		ID:         m.newID(),
		PreviousID: previous,
		StartedAt:  now,
	}
	m.current.Store(started)
	m.lastID = started.ID
	return ended, started
}

func (m *Manager) observersLocked() []Observer {
	if len(m.observers) == 0 {
		return nil
	}
	return append([]Observer(nil), m.observers...)
}

func notify(observers []Observer, ended, started *Session) {
	for _, o := range observers {
		if ended != nil {
			o.SessionEnded(*ended)
		}
		if started != nil {
			o.SessionStarted(*started)
		}
	}
}
