// Command adminctl signs in to the admin API and keeps the session alive until
// interrupted, logging refresh, warning and idle events.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskplanner-admin/internal/lifecycle"
	"taskplanner-admin/pkg/logger"
)

func main() {
	var (
		addr    = flag.String("addr", "http://localhost:8080", "admin API base URL")
		email   = flag.String("email", os.Getenv("ADMINCTL_EMAIL"), "admin email")
		ping    = flag.Duration("ping", time.Minute, "interval between keep-alive requests; 0 disables")
		idle    = flag.Duration("idle", 30*time.Minute, "idle warning threshold")
		env     = flag.String("env", "local", "log level profile (local, dev, staging, production)")
		timeout = flag.Duration("timeout", 15*time.Second, "per-request timeout")
	)
	flag.Parse()

	log := logger.New(*env)
	slog.SetDefault(log)

	password := os.Getenv("ADMINCTL_PASSWORD")
	if *email == "" || password == "" {
		log.Error("email and ADMINCTL_PASSWORD are required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := newAPIClient(*addr, *timeout)
	tok, err := api.Login(ctx, *email, password)
	if err != nil {
		log.Error("login failed", "err", err)
		os.Exit(1)
	}
	log.Info("signed in", "session_id", tok.SessionID, "expires_at", tok.ExpiresAt)

	expired := make(chan string, 1)
	cfg := lifecycle.DefaultConfig()
	cfg.IdleThreshold = *idle
	cfg.RefreshTimeout = *timeout

	client := lifecycle.New(nil, cfg, lifecycle.Callbacks{
		Refresh: func(ctx context.Context) (time.Time, error) {
			exp, err := api.Refresh(ctx)
			if err == nil {
				log.Info("session refreshed", "expires_at", exp)
			}
			return exp, err
		},
		OnWarning: func(remaining time.Duration) {
			log.Warn("session expiring soon", "remaining", remaining.Round(time.Second))
		},
		OnIdle: func(idleFor time.Duration) {
			log.Warn("session idle", "idle_for", idleFor)
		},
		OnExpired: func(reason string) {
			expired <- reason
		},
	}, lifecycle.WithLogger(log))
	client.Start(tok.ExpiresAt)

	var tick <-chan time.Time
	if *ping > 0 {
		t := time.NewTicker(*ping)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-tick:
			if err := api.Ping(ctx); err != nil {
				log.Warn("keep-alive failed", "err", err)
				continue
			}
			client.Activity("request")
		case reason := <-expired:
			log.Error("session ended", "reason", reason)
			os.Exit(1)
		case <-ctx.Done():
			client.Logout(lifecycle.ReasonLogout)
			logoutCtx, cancel := context.WithTimeout(context.Background(), *timeout)
			err := api.Logout(logoutCtx)
			cancel()
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("logout failed", "err", err)
				os.Exit(1)
			}
			log.Info("signed out")
			return
		}
	}
}
