package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

const DefaultMaxEntries = 10000

// MemoryStore keeps counters in a mutex-guarded map.
//
// The map is bounded by MaxEntries. When a new identifier arrives at capacity, expired
// lockouts are dropped first, then the least recently updated unlocked counters (about a
// tenth of capacity per pass). Active lockouts are never evicted, so flooding the map with
// throwaway identifiers cannot release a locked account; if every slot holds an active
// lockout the map grows past the bound instead.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	maxEntries int
}

func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{entries: make(map[string]*Entry), maxEntries: maxEntries}
}

func (s *MemoryStore) Get(_ context.Context, identifier string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[identifier]
	if !ok {
		return Entry{}, false, nil
	}
	return *e, true, nil
}

func (s *MemoryStore) Hit(_ context.Context, identifier string, now time.Time, maxAttempts int, lockout time.Duration) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[identifier]
	if ok && e.lockExpired(now) {
		delete(s.entries, identifier)
		ok = false
	}
	if !ok {
		if len(s.entries) >= s.maxEntries {
			s.evictLocked(now)
		}
		e = &Entry{Identifier: identifier}
		s.entries[identifier] = e
	}
	if e.LockedAt(now) {
		return *e, false, nil
	}

	e.Count++
	e.UpdatedAt = now
	if e.Count >= maxAttempts {
		e.LockedUntil = now.Add(lockout)
	}
	return *e, true, nil
}

func (s *MemoryStore) Clear(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, identifier)
	return nil
}

// Len reports the number of tracked identifiers.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// evictLocked must be called with s.mu held.
func (s *MemoryStore) evictLocked(now time.Time) {
	var unlocked []*Entry
	for id, e := range s.entries {
		switch {
		case e.lockExpired(now):
			delete(s.entries, id)
		case !e.LockedAt(now):
			unlocked = append(unlocked, e)
		}
	}
	if len(s.entries) < s.maxEntries {
		return
	}

	sort.Slice(unlocked, func(i, j int) bool { return unlocked[i].UpdatedAt.Before(unlocked[j].UpdatedAt) })
	n := s.maxEntries / 10
	if n < 1 {
		n = 1
	}
	for i := 0; i < n && i < len(unlocked); i++ {
		delete(s.entries, unlocked[i].Identifier)
	}
}
