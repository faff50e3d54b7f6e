package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"
	"time"
)

const serviceName = "taskplanner-admin"

// sink receives every record written by loggers from New.
var sink io.Writer = os.Stdout

// New returns a production-friendly structured logger.
// No business logic should depend on logging implementation details.
func New(appEnv string) *slog.Logger {
	level := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		level = slog.LevelDebug
	}

	h := slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: level, ReplaceAttr: redact})
	return slog.New(h).With("service", serviceName, "env", appEnv)
}

// redacted attribute keys never reach the log sink.
var redacted = map[string]struct{}{
	"password":      {},
	"access_token":  {},
	"refresh_token": {},
	"token":         {},
	"authorization": {},
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := redacted[a.Key]; ok {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets a logger from context, falling back to slog.Default().
func From(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

type syncer interface {
	Sync() error
}

// ShutdownFlush syncs the log sink so the final records survive a container
// stop. Sinks that cannot sync (pipes, terminals) are not an error.
func ShutdownFlush(ctx context.Context, timeout time.Duration) error {
	s, ok := sink.(syncer)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Sync() }()
	select {
	case err := <-done:
		if err == nil || errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTSUP) {
			return nil
		}
		return fmt.Errorf("logger: sync: %w", err)
	case <-ctx.Done():
		return fmt.Errorf("logger: sync: %w", ctx.Err())
	}
}
