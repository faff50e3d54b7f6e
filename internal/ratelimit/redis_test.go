package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb), mr
}

func TestRedisStore_LocksAfterMaxAttemptsAndResetsFully(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	l, clk := newTestLimiter(store)
	key := redisKey("ops@example.com")

	for i := 0; i < 5; i++ {
		st, err := l.Check(ctx, "ops@example.com")
		if err != nil || !st.Allowed {
			t.Fatalf("attempt %d should be allowed: %+v %v", i, st, err)
		}
		if st.RemainingAttempts != 5-i {
			t.Fatalf("attempt %d: remaining %d", i, st.RemainingAttempts)
		}
		if err := l.Record(ctx, "ops@example.com", false); err != nil {
			t.Fatalf("record: %v", err)
		}
		if i == 0 {
			if ttl := mr.TTL(key); ttl != 24*time.Hour {
				t.Fatalf("unlocked counter ttl = %v", ttl)
			}
		}
	}

	st, err := l.Check(ctx, "ops@example.com")
	if err != nil || st.Allowed {
		t.Fatalf("expected lockout after 5 failures: %+v %v", st, err)
	}
	if !st.LockedUntil.Equal(clk.Now().Add(15 * time.Minute)) {
		t.Fatalf("unexpected lockedUntil %v", st.LockedUntil)
	}
	if ttl := mr.TTL(key); ttl != 15*time.Minute {
		t.Fatalf("locked counter ttl = %v", ttl)
	}
	if got := mr.HGet(key, "count"); got != "5" {
		t.Fatalf("count field = %q", got)
	}

	// failures during lockout neither count nor extend it
	clk.Advance(5 * time.Minute)
	_ = l.Record(ctx, "ops@example.com", false)
	again, _ := l.Check(ctx, "ops@example.com")
	if !again.LockedUntil.Equal(st.LockedUntil) || mr.HGet(key, "count") != "5" {
		t.Fatalf("lockout changed during lock: %+v count=%s", again, mr.HGet(key, "count"))
	}

	clk.Advance(10 * time.Minute)
	st, _ = l.Check(ctx, "ops@example.com")
	if !st.Allowed || st.RemainingAttempts != 5 {
		t.Fatalf("expected full reset after lockout, got %+v", st)
	}
	if mr.Exists(key) {
		t.Fatalf("expired lockout should delete the key")
	}
}

func TestRedisStore_IdleCounterExpires(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	l, _ := newTestLimiter(store)

	_ = l.Record(ctx, "a", false)
	_ = l.Record(ctx, "a", false)
	if st, _ := l.Check(ctx, "a"); st.RemainingAttempts != 3 {
		t.Fatalf("expected 3 remaining, got %d", st.RemainingAttempts)
	}

	mr.FastForward(24*time.Hour + time.Second)
	if st, _ := l.Check(ctx, "a"); st.RemainingAttempts != 5 {
		t.Fatalf("idle counter should expire, got %d", st.RemainingAttempts)
	}
}

func TestRedisStore_GetParsesStoredFields(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	if _, ok, err := store.Get(ctx, "nobody"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}

	until := time.UnixMilli(1700000900000)
	mr.HSet(redisKey("x"), "count", "3", "locked_until", "1700000900000")
	e, ok, err := store.Get(ctx, "x")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if e.Count != 3 || !e.LockedUntil.Equal(until) {
		t.Fatalf("unexpected entry %+v", e)
	}

	mr.HSet(redisKey("y"), "count", "oops")
	if _, _, err := store.Get(ctx, "y"); err == nil {
		t.Fatalf("expected parse error for a corrupt count")
	}
}

func TestRedisStore_ConcurrentAcquireNeverExceedsCeiling(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)
	l, _ := newTestLimiter(store)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := l.Acquire(ctx, "target")
			if err != nil || !st.Allowed {
				return
			}
			mu.Lock()
			allowed++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if allowed != 5 {
		t.Fatalf("expected exactly 5 attempts through, got %d", allowed)
	}
}

func TestRedisStore_UnavailableIsAnError(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()
	if _, _, err := store.Hit(context.Background(), "x", time.Now(), 5, time.Minute); err == nil {
		t.Fatalf("expected error from a closed server")
	}
}
