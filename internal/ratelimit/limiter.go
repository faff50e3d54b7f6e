// Package ratelimit tracks failed admin logins per identifier and enforces a timed lockout.
//
// The default MemoryStore is process-local: counters do not survive a restart and are
// not shared between API instances, so N instances allow up to N×MaxAttempts tries per
// lockout window. Deployments running more than one instance should use RedisStore.
package ratelimit

import (
	"context"
	"strings"
	"time"
)

type Config struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

func DefaultConfig() Config {
	return Config{MaxAttempts: 5, LockoutDuration: 15 * time.Minute}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = d.LockoutDuration
	}
	return c
}

// Entry is the failure counter for one identifier.
type Entry struct {
	Identifier  string
	Count       int
	LockedUntil time.Time // zero when not locked
	UpdatedAt   time.Time
}

func (e Entry) LockedAt(now time.Time) bool {
	return !e.LockedUntil.IsZero() && now.Before(e.LockedUntil)
}

func (e Entry) lockExpired(now time.Time) bool {
	return !e.LockedUntil.IsZero() && !now.Before(e.LockedUntil)
}

// Store owns the counters. Hit must be atomic per identifier: concurrent attempts
// must never be lost, or an attacker could exceed the attempt ceiling.
type Store interface {
	Get(ctx context.Context, identifier string) (Entry, bool, error)
	// Hit counts one attempt. An expired lockout is discarded before counting.
	// Once the count reaches maxAttempts the entry is locked until now+lockout.
	// During an active lockout nothing is counted, the lockout is not extended
	// and counted is false.
	Hit(ctx context.Context, identifier string, now time.Time, maxAttempts int, lockout time.Duration) (e Entry, counted bool, err error)
	Clear(ctx context.Context, identifier string) error
}

// Status is the answer to "may this identifier attempt a login now".
type Status struct {
	Allowed           bool
	RemainingAttempts int
	LockedUntil       time.Time // zero unless locked
}

// RetryAfter is the remaining lockout, rounded up to the second.
func (s Status) RetryAfter(now time.Time) time.Duration {
	if s.Allowed || s.LockedUntil.IsZero() {
		return 0
	}
	d := s.LockedUntil.Sub(now)
	if d <= 0 {
		return 0
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}

type Limiter struct {
	store Store
	cfg   Config
	// now is injectable for deterministic tests.
	now func() time.Time
}

func NewLimiter(store Store, cfg Config) *Limiter {
	return &Limiter{store: store, cfg: cfg.withDefaults(), now: time.Now}
}

func (l *Limiter) Config() Config { return l.cfg }

// Normalize maps login handles to a single counter key.
func Normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func (l *Limiter) Check(ctx context.Context, identifier string) (Status, error) {
	id := Normalize(identifier)
	now := l.now()

	e, ok, err := l.store.Get(ctx, id)
	if err != nil {
		return Status{}, err
	}
	if !ok {
		return Status{Allowed: true, RemainingAttempts: l.cfg.MaxAttempts}, nil
	}
	if e.LockedAt(now) {
		return Status{Allowed: false, RemainingAttempts: 0, LockedUntil: e.LockedUntil}, nil
	}
	if e.lockExpired(now) {
		// Full reset once the lockout has passed.
		if err := l.store.Clear(ctx, id); err != nil {
			return Status{}, err
		}
		return Status{Allowed: true, RemainingAttempts: l.cfg.MaxAttempts}, nil
	}

	remaining := l.cfg.MaxAttempts - e.Count
	if remaining < 0 {
		remaining = 0
	}
	return Status{Allowed: remaining > 0, RemainingAttempts: remaining}, nil
}

// Acquire takes one attempt from the identifier's budget before the credential
// check runs. The attempt stays counted unless the caller reports success through
// Record, so concurrent logins cannot all pass a Check taken before any failure
// was recorded.
func (l *Limiter) Acquire(ctx context.Context, identifier string) (Status, error) {
	e, counted, err := l.store.Hit(ctx, Normalize(identifier), l.now(), l.cfg.MaxAttempts, l.cfg.LockoutDuration)
	if err != nil {
		return Status{}, err
	}
	if !counted {
		return Status{Allowed: false, RemainingAttempts: 0, LockedUntil: e.LockedUntil}, nil
	}
	remaining := l.cfg.MaxAttempts - e.Count
	if remaining < 0 {
		remaining = 0
	}
	return Status{Allowed: true, RemainingAttempts: remaining}, nil
}

func (l *Limiter) Record(ctx context.Context, identifier string, success bool) error {
	id := Normalize(identifier)
	if success {
		return l.store.Clear(ctx, id)
	}
	_, _, err := l.store.Hit(ctx, id, l.now(), l.cfg.MaxAttempts, l.cfg.LockoutDuration)
	return err
}
