package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Gateway for tests and local development.
type MemoryStore struct {
	mu    sync.Mutex
	rows  map[string]Record
	clock func() time.Time

	// Err, when set, is returned (wrapped) by every call. Used to simulate outages.
	Err error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Record), clock: time.Now}
}

func (s *MemoryStore) fail() error {
	if s.Err != nil {
		return wrap("memory", s.Err)
	}
	return nil
}

func (s *MemoryStore) Create(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	s.rows[r.ID] = r
	return nil
}

func (s *MemoryStore) FindActive(_ context.Context, id string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return Record{}, false, err
	}
	r, ok := s.rows[id]
	if !ok || !r.Active(s.clock()) {
		return Record{}, false, nil
	}
	return r, true, nil
}

func (s *MemoryStore) Invalidate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	r, ok := s.rows[id]
	if !ok || r.InvalidatedAt != nil {
		return nil
	}
	now := s.clock()
	r.InvalidatedAt = &now
	s.rows[id] = r
	return nil
}

func (s *MemoryStore) InvalidateAll(_ context.Context, adminUserID, exceptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	now := s.clock()
	for id, r := range s.rows {
		if r.AdminUserID != adminUserID || id == exceptID || r.InvalidatedAt != nil {
			continue
		}
		at := now
		r.InvalidatedAt = &at
		s.rows[id] = r
	}
	return nil
}

func (s *MemoryStore) Touch(_ context.Context, id, tokenHash string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return false, err
	}
	r, ok := s.rows[id]
	if !ok || !r.Active(s.clock()) {
		return false, nil
	}
	r.TokenHash = tokenHash
	r.LastActivityAt = at
	s.rows[id] = r
	return true, nil
}

func (s *MemoryStore) ListByAdmin(_ context.Context, adminUserID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range s.rows {
		if r.AdminUserID == adminUserID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Get returns the raw row regardless of state.
func (s *MemoryStore) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	return r, ok
}
