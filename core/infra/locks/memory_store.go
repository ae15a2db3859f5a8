package locks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[string]Lock
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: make(map[string]Lock), now: time.Now}
}

func (s *MemoryStore) Acquire(_ context.Context, resource, owner string, ttl time.Duration) (*Lock, bool, error) {
	resource, owner, err := normalizeKey(resource, owner)
	if err != nil {
		return nil, false, err
	}
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.locks[resource]; ok && now.Before(cur.ExpiresAt) && cur.Owner != owner {
		return nil, false, nil
	}
	lock := Lock{Resource: resource, Owner: owner, ExpiresAt: now.Add(normalizeTTL(ttl))}
	s.locks[resource] = lock
	return &lock, true, nil
}

func (s *MemoryStore) Release(_ context.Context, resource, owner string) (bool, error) {
	resource, owner, err := normalizeKey(resource, owner)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.locks[resource]
	if !ok || cur.Owner != owner {
		return false, nil
	}
	delete(s.locks, resource)
	return true, nil
}

func (s *MemoryStore) Renew(_ context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	resource, owner, err := normalizeKey(resource, owner)
	if err != nil {
		return false, err
	}
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.locks[resource]
	if !ok || cur.Owner != owner || !now.Before(cur.ExpiresAt) {
		return false, nil
	}
	cur.ExpiresAt = now.Add(normalizeTTL(ttl))
	s.locks[resource] = cur
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, resource string) (*Lock, error) {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return nil, fmt.Errorf("resource required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.locks[resource]
	if !ok || !s.now().UTC().Before(cur.ExpiresAt) {
		delete(s.locks, resource)
		return nil, ErrNotHeld
	}
	return &cur, nil
}

func normalizeKey(resource, owner string) (string, string, error) {
	resource = strings.TrimSpace(resource)
	owner = strings.TrimSpace(owner)
	if resource == "" || owner == "" {
		return "", "", fmt.Errorf("resource and owner required")
	}
	return resource, owner, nil
}
