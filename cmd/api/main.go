package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskplanner-admin/internal/audit"
	"taskplanner-admin/internal/auth"
	"taskplanner-admin/internal/config"
	"taskplanner-admin/internal/httpapi"
	"taskplanner-admin/internal/identity"
	"taskplanner-admin/internal/metrics"
	"taskplanner-admin/internal/ratelimit"
	"taskplanner-admin/internal/rbac"
	"taskplanner-admin/internal/session"
	"taskplanner-admin/pkg/logger"
	"taskplanner-admin/pkg/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)
	for _, w := range cfg.Warnings() {
		log.Warn("configuration hazard", "warning", w)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	tokens, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}
	if tokens.UsesDevelopmentSecret() {
		log.Warn("signing tokens with the development secret")
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PoolConfig{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		ConnectAttempts: cfg.DB.ConnectAttempts,
	})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := metrics.RegisterPool(db); err != nil {
		log.Warn("pool metrics not registered", "err", err)
	}

	// Lockouts are shared through redis when configured, process-local otherwise.
	var attempts ratelimit.Store = ratelimit.NewMemoryStore(cfg.RateLimit.MaxEntries)
	if addr := cfg.RedisAddr(); addr != "" {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		attempts = ratelimit.NewRedisStore(rdb)
	}
	limiter := ratelimit.NewLimiter(attempts, ratelimit.Config{
		MaxAttempts:     cfg.RateLimit.MaxAttempts,
		LockoutDuration: cfg.RateLimit.LockoutDuration,
	})

	auditRepo, closeAudit, err := buildAuditRepo(db, cfg.Audit)
	if err != nil {
		log.Error("audit init failed", "err", err)
		os.Exit(1)
	}
	auditSvc := audit.NewService(auditRepo, log, cfg.Audit.BufferSize)

	directory, err := identity.NewPostgresDirectory(db, identity.NewHasher(0))
	if err != nil {
		log.Error("identity init failed", "err", err)
		os.Exit(1)
	}
	extra, err := directory.LoadRules(rootCtx)
	if err != nil {
		log.Error("permission rules load failed", "err", err)
		os.Exit(1)
	}

	authSvc, err := auth.NewService(auth.Deps{
		Tokens:     tokens,
		Limiter:    limiter,
		Sessions:   session.NewPostgresStore(db),
		Identities: directory,
		Profiles:   directory,
		Policy:     rbac.NewPolicy(extra...),
		Audit:      auditSvc,
		Logger:     log,
	})
	if err != nil {
		log.Error("auth service init failed", "err", err)
		os.Exit(1)
	}

	h := httpapi.Handlers{
		Auth:    authSvc,
		Errors:  httpapi.ErrorWriter{ExposeDetail: cfg.ExposeErrorDetail()},
		Cookies: httpapi.CookieOptions{Secure: cfg.Cookie.Secure, Domain: cfg.Cookie.Domain},
	}
	guard := auth.NewGuard(authSvc)
	guard.Respond = h.Errors.Write

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, h, guard, db)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	if err := auditSvc.Close(shutdownCtx); err != nil {
		log.Error("audit drain failed", "err", err, "dropped", auditSvc.Dropped())
	}
	if err := closeAudit(); err != nil {
		log.Error("audit sink close failed", "err", err)
	}

	if err := logger.ShutdownFlush(shutdownCtx, 2*time.Second); err != nil {
		log.Error("log flush failed", "err", err)
	}
}
