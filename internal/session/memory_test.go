package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seed(t *testing.T, s *MemoryStore, id, admin string, created time.Time) {
	t.Helper()
	err := s.Create(context.Background(), Record{
		ID: id, AdminUserID: admin, TokenHash: HashToken(id),
		CreatedAt: created, LastActivityAt: created, ExpiresAt: created.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestMemoryStore_InvalidateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, "s1", "a1", time.Now())

	if err := s.Invalidate(ctx, "s1"); err != nil {
		t.Fatalf("first invalidate: %v", err)
	}
	first, _ := s.Get("s1")
	if err := s.Invalidate(ctx, "s1"); err != nil {
		t.Fatalf("second invalidate: %v", err)
	}
	second, _ := s.Get("s1")
	if !first.InvalidatedAt.Equal(*second.InvalidatedAt) {
		t.Fatalf("second invalidate changed the timestamp")
	}
	if err := s.Invalidate(ctx, "missing"); err != nil {
		t.Fatalf("unknown id should not error: %v", err)
	}
	if _, ok, _ := s.FindActive(ctx, "s1"); ok {
		t.Fatalf("invalidated session still active")
	}
}

func TestMemoryStore_InvalidateAllKeepsExcepted(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	seed(t, s, "s1", "a1", now)
	seed(t, s, "s2", "a1", now)
	seed(t, s, "s3", "a2", now)

	if err := s.InvalidateAll(ctx, "a1", "s2"); err != nil {
		t.Fatalf("invalidate all: %v", err)
	}
	if _, ok, _ := s.FindActive(ctx, "s1"); ok {
		t.Fatalf("s1 should be invalidated")
	}
	if _, ok, _ := s.FindActive(ctx, "s2"); !ok {
		t.Fatalf("excepted session must stay active")
	}
	if _, ok, _ := s.FindActive(ctx, "s3"); !ok {
		t.Fatalf("other admin's session must stay active")
	}
}

func TestMemoryStore_FindActiveHonoursExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	s.clock = func() time.Time { return now.Add(2 * time.Hour) }
	seed(t, s, "s1", "a1", now)
	if _, ok, _ := s.FindActive(ctx, "s1"); ok {
		t.Fatalf("expired session reported active")
	}
}

func TestMemoryStore_TouchUpdatesHashAndActivity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	seed(t, s, "s1", "a1", now)

	later := now.Add(10 * time.Minute)
	ok, err := s.Touch(ctx, "s1", HashToken("new"), later)
	if err != nil || !ok {
		t.Fatalf("touch: ok=%v err=%v", ok, err)
	}
	r, _ := s.Get("s1")
	if !TokenHashEqual(r.TokenHash, HashToken("new")) || !r.LastActivityAt.Equal(later) {
		t.Fatalf("touch not applied: %+v", r)
	}
}

func TestMemoryStore_TouchSkipsInvalidatedRow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	seed(t, s, "s1", "a1", now)
	before, _ := s.Get("s1")

	if err := s.InvalidateAll(ctx, "a1", ""); err != nil {
		t.Fatalf("invalidate all: %v", err)
	}
	ok, err := s.Touch(ctx, "s1", HashToken("late"), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if ok {
		t.Fatalf("touch reported an update on an invalidated row")
	}
	r, _ := s.Get("s1")
	if r.TokenHash != before.TokenHash {
		t.Fatalf("token hash rotated on an invalidated row")
	}
	if ok, _ := s.Touch(ctx, "missing", HashToken("x"), now); ok {
		t.Fatalf("touch reported an update for an unknown id")
	}
}

func TestMemoryStore_FailuresWrapStorageUnavailable(t *testing.T) {
	s := NewMemoryStore()
	s.Err = errors.New("connection refused")
	_, _, err := s.FindActive(context.Background(), "s1")
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestMemoryStore_ListByAdminNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	seed(t, s, "old", "a1", now.Add(-time.Minute))
	seed(t, s, "new", "a1", now)
	got, err := s.ListByAdmin(context.Background(), "a1")
	if err != nil || len(got) != 2 || got[0].ID != "new" {
		t.Fatalf("unexpected list: %+v %v", got, err)
	}
}

func TestHashToken(t *testing.T) {
	if HashToken("a") == HashToken("b") {
		t.Fatalf("distinct tokens must hash differently")
	}
	if len(HashToken("a")) != 64 {
		t.Fatalf("expected hex sha-256")
	}
}
