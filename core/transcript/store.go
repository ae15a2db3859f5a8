// Package transcript holds the append-only conversation log of one session.
package transcript

import (
	"sort"
	"sync"
	"time"

	"github.com/cordum/playground/core/configsvc"
	"github.com/google/uuid"
)

// Role identifies who produced an entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Entry is one immutable transcript line.
type Entry struct {
	ID          string         `json:"id"`
	Role        Role           `json:"role"`
	Content     string         `json:"content"`
	RawMetadata map[string]any `json:"raw_metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Listener is notified after every append, and with a zero Entry after Reset.
type Listener func(Event)

// EventKind distinguishes appends from resets.
type EventKind string

const (
	EventAppend EventKind = "append"
	EventReset  EventKind = "reset"
)

// Event is delivered to listeners.
type Event struct {
	Kind  EventKind `json:"kind"`
	Entry Entry     `json:"entry"`
}

// Store is an append-only list of entries, safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	entries   []Entry
	listeners map[int]Listener
	nextID    int
	now       func() time.Time
}

// NewStore returns an empty transcript.
func NewStore() *Store {
	return &Store{
		listeners: make(map[int]Listener),
		now:       time.Now,
	}
}

// Append adds an entry and returns a copy of it.
func (s *Store) Append(role Role, content string, metadata map[string]any) Entry {
	entry := Entry{
		ID:          uuid.NewString(),
		Role:        role,
		Content:     content,
		RawMetadata: copyMetadata(metadata),
		CreatedAt:   s.now().UTC(),
	}
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	listeners := s.listenersLocked()
	s.mu.Unlock()

	out := entry.clone()
	for _, fn := range listeners {
		fn(Event{Kind: EventAppend, Entry: entry.clone()})
	}
	return out
}

// Entries returns a copy of every entry in append order.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.clone())
	}
	return out
}

// Since returns the entries appended after the first n.
func (s *Store) Since(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n < 0 {
		n = 0
	}
	if n >= len(s.entries) {
		return nil
	}
	out := make([]Entry, 0, len(s.entries)-n)
	for _, e := range s.entries[n:] {
		out = append(out, e.clone())
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Last returns the most recent entry.
func (s *Store) Last() (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[len(s.entries)-1].clone(), true
}

// LastByRole returns the most recent entry with the given role.
func (s *Store) LastByRole(role Role) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Role == role {
			return s.entries[i].clone(), true
		}
	}
	return Entry{}, false
}

// Reset clears the transcript.
func (s *Store) Reset() {
	s.mu.Lock()
	s.entries = nil
	listeners := s.listenersLocked()
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(Event{Kind: EventReset})
	}
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) listenersLocked() []Listener {
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.listeners[id])
	}
	return out
}

func (e Entry) clone() Entry {
	e.RawMetadata = copyMetadata(e.RawMetadata)
	return e
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, _ := configsvc.CloneValue(m).(map[string]any)
	return out
}
