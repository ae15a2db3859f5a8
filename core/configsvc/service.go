package configsvc

import (
	"sort"
	"sync"
	"time"

	"github.com/cordum/playground/core/infra/logging"
)

// Snapshot is one immutable version of the playground configuration.
type Snapshot struct {
	Version   int64     `json:"version"`
	Hash      string    `json:"hash"`
	UpdatedAt time.Time `json:"updated_at"`
	Config    Aggregate `json:"config"`
}

func (s Snapshot) clone() Snapshot {
	s.Config = s.Config.Clone()
	return s
}

// Observer receives every new snapshot after it is committed.
type Observer func(Snapshot)

// Store holds the current configuration snapshot and notifies observers on
// every update. Updates never mutate a snapshot handed out earlier.
type Store struct {
	mu        sync.RWMutex
	current   Snapshot
	observers map[int]Observer
	nextID    int
}

// NewStore creates a store whose first snapshot (version 1) is initial.
func NewStore(initial Aggregate) *Store {
	s := &Store{observers: make(map[int]Observer)}
	s.current = newSnapshot(1, initial.Clone())
	return s
}

// Current returns a copy of the latest snapshot.
func (s *Store) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Update shallow-merges partial into the current aggregate per top-level key,
// commits the result as a new snapshot and notifies observers. No validation
// is performed here.
func (s *Store) Update(partial Aggregate) Snapshot {
	s.mu.Lock()
	merged := Merge(s.current.Config, partial)
	next := newSnapshot(s.current.Version+1, merged)
	s.current = next
	observers := s.sortedObservers()
	s.mu.Unlock()

	for _, fn := range observers {
		fn(next.clone())
	}
	return next.clone()
}

// Subscribe registers fn for future snapshots. The returned func removes it.
func (s *Store) Subscribe(fn Observer) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Store) sortedObservers() []Observer {
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Observer, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.observers[id])
	}
	return out
}

// Merge overwrites top-level keys of base with the non-nil keys of partial.
// Neither argument is modified.
func Merge(base, partial Aggregate) Aggregate {
	out := base.Clone()
	p := partial.Clone()
	if p.Guard != nil {
		out.Guard = p.Guard
	}
	if p.Context != nil {
		out.Context = p.Context
	}
	if p.RAG != nil {
		out.RAG = p.RAG
	}
	if p.Scorer != nil {
		out.Scorer = p.Scorer
	}
	if p.Validator != nil {
		out.Validator = p.Validator
	}
	if p.Logger != nil {
		out.Logger = p.Logger
	}
	if p.Monitor != nil {
		out.Monitor = p.Monitor
	}
	if p.Visualization != nil {
		out.Visualization = p.Visualization
	}
	if p.LLM != nil {
		out.LLM = p.LLM
	}
	if p.Chat != nil {
		out.Chat = p.Chat
	}
	return out
}

func newSnapshot(version int64, cfg Aggregate) Snapshot {
	hash, err := snapshotHash(cfg)
	if err != nil {
		logging.Error("configsvc", "snapshot hash failed", "version", version, "error", err)
	}
	return Snapshot{
		Version:   version,
		Hash:      hash,
		UpdatedAt: time.Now().UTC(),
		Config:    cfg,
	}
}
