package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPoolConfig_Defaults(t *testing.T) {
	got := PoolConfig{MaxOpenConns: 5, MaxIdleConns: 50}.withDefaults()
	if got.MaxOpenConns != 5 {
		t.Fatalf("explicit value overwritten: %d", got.MaxOpenConns)
	}
	if got.MaxIdleConns != 5 {
		t.Fatalf("idle conns must not exceed open conns, got %d", got.MaxIdleConns)
	}
	if got.ConnMaxLifetime != 30*time.Minute || got.PingTimeout != 5*time.Second || got.ConnectAttempts != 1 {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthCheck_WrapsPingFailure(t *testing.T) {
	down := errors.New("connection refused")
	err := HealthCheck(context.Background(), pingerFunc(func(context.Context) error { return down }), time.Second)
	if !errors.Is(err, down) {
		t.Fatalf("expected wrapped ping error, got %v", err)
	}
}

func TestHealthCheck_AppliesTimeout(t *testing.T) {
	err := HealthCheck(context.Background(), pingerFunc(func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	}), time.Second)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestWaitReady_RetriesUntilThePoolAnswers(t *testing.T) {
	pings := 0
	db := pingerFunc(func(context.Context) error {
		pings++
		if pings < 3 {
			return errors.New("the database system is starting up")
		}
		return nil
	})
	pool := PoolConfig{ConnectAttempts: 5, ConnectBackoff: time.Millisecond}.withDefaults()
	if err := waitReady(context.Background(), db, pool); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if pings != 3 {
		t.Fatalf("expected 3 pings, got %d", pings)
	}
}

func TestWaitReady_GivesUp(t *testing.T) {
	down := errors.New("connection refused")
	db := pingerFunc(func(context.Context) error { return down })

	pool := PoolConfig{ConnectAttempts: 2, ConnectBackoff: time.Millisecond}.withDefaults()
	if err := waitReady(context.Background(), db, pool); !errors.Is(err, down) {
		t.Fatalf("expected last ping error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pool = PoolConfig{ConnectAttempts: 10, ConnectBackoff: time.Hour}.withDefaults()
	if err := waitReady(ctx, db, pool); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
