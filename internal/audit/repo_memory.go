package audit

import (
	"context"
	"sync"
)

// MemoryRepo keeps audit events in process. Used by tests and local runs
// without a database.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event

	// Err, when set, fails every Append. Simulates a broken sink.
	Err error
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything appended so far, oldest first.
func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByAdmin returns the events recorded for one admin, oldest first.
func (r *MemoryRepo) ByAdmin(adminID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.AdminID == adminID {
			out = append(out, e)
		}
	}
	return out
}
