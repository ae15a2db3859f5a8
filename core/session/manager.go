package session

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cordum/playground/core/configsvc"
	"github.com/cordum/playground/core/infra/bus"
	"github.com/cordum/playground/core/infra/locks"
	"github.com/cordum/playground/core/infra/logging"
	"github.com/cordum/playground/core/infra/metrics"
	"github.com/cordum/playground/core/pipeline"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

const (
	DefaultTTL         = 30 * time.Minute
	DefaultMaxSessions = 256
)

// Options configure a Manager. Gateway is required.
type Options struct {
	Gateway     pipeline.Gateway
	TTL         time.Duration
	MaxSessions int

	// Initial builds the configuration of a new session. Defaults to
	// configsvc.Defaults.
	Initial     func() configsvc.Aggregate
	InitialTool string

	// Locks serializes chat calls on a shared remote guard id. Sessions on
	// every replica must share the store for that to hold.
	Locks          locks.Store
	LockTTL        time.Duration
	LockWait       time.Duration
	Publisher      bus.Publisher
	Metrics        metrics.Metrics
	SessionMetrics metrics.SessionMetrics
}

// Manager keeps sessions in an LRU with idle expiry. Reading a session
// refreshes its expiry.
type Manager struct {
	opts     Options
	sessions *expirable.LRU[string, *Session]

	active  atomic.Int64
	deleted sync.Map
	closing sync.WaitGroup
}

// NewManager builds a session registry.
func NewManager(opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.Initial == nil {
		opts.Initial = configsvc.Defaults
	}
	if opts.Publisher == nil {
		opts.Publisher = bus.Noop{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	if opts.SessionMetrics == nil {
		opts.SessionMetrics = metrics.Noop{}
	}
	m := &Manager{opts: opts}
	m.sessions = expirable.NewLRU[string, *Session](opts.MaxSessions, m.onEvict, opts.TTL)
	return m
}

// onEvict runs under the LRU lock, so the session is closed on its own
// goroutine.
func (m *Manager) onEvict(id string, s *Session) {
	m.opts.SessionMetrics.SetActiveSessions(int(m.active.Add(-1)))
	if _, explicit := m.deleted.LoadAndDelete(id); !explicit {
		m.opts.SessionMetrics.IncSessionsEvicted()
		logging.Info("session", "session evicted", "session", id)
	}
	m.closing.Add(1)
	go func() {
		defer m.closing.Done()
		s.close()
	}()
}

// Create starts a session with the default configuration and tool.
func (m *Manager) Create() *Session {
	return m.CreateFrom(m.opts.Initial(), m.opts.InitialTool)
}

// CreateFrom starts a session with the given configuration and tool.
func (m *Manager) CreateFrom(initial configsvc.Aggregate, tool string) *Session {
	id := uuid.NewString()
	opts := pipeline.Options{
		Metrics:     m.opts.Metrics,
		Locks:       m.opts.Locks,
		LockTTL:     m.opts.LockTTL,
		LockWait:    m.opts.LockWait,
		InitialTool: tool,
	}
	s := newSession(id, initial, m.opts.Gateway, m.opts.Publisher, opts)
	m.opts.SessionMetrics.SetActiveSessions(int(m.active.Add(1)))
	m.sessions.Add(id, s)
	activeTool, _ := s.Tool()
	logging.Info("session", "session created", "session", id, "tool", activeTool)
	return s
}

// Get returns a live session and refreshes its expiry.
func (m *Manager) Get(id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	m.sessions.Add(id, s)
	return s, nil
}

// Delete closes and forgets a session.
func (m *Manager) Delete(id string) error {
	id = strings.TrimSpace(id)
	if _, ok := m.sessions.Peek(id); !ok {
		return ErrNotFound
	}
	m.deleted.Store(id, struct{}{})
	if !m.sessions.Remove(id) {
		m.deleted.Delete(id)
		return ErrNotFound
	}
	return nil
}

// IDs lists live sessions, oldest first.
func (m *Manager) IDs() []string {
	return m.sessions.Keys()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return m.sessions.Len()
}

// Close drops every session and waits for their tracking calls.
func (m *Manager) Close() {
	for _, id := range m.sessions.Keys() {
		m.deleted.Store(id, struct{}{})
	}
	m.sessions.Purge()
	m.closing.Wait()
}
