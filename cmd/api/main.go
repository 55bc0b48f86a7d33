package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caxulex/shiftcore/internal/access"
	"github.com/caxulex/shiftcore/internal/api"
	"github.com/caxulex/shiftcore/internal/audit"
	"github.com/caxulex/shiftcore/internal/config"
	"github.com/caxulex/shiftcore/internal/identity"
	"github.com/caxulex/shiftcore/internal/kv"
	"github.com/caxulex/shiftcore/internal/loginsec"
	"github.com/caxulex/shiftcore/internal/presence"
	"github.com/caxulex/shiftcore/internal/realtime"
	"github.com/caxulex/shiftcore/internal/store"
	"github.com/caxulex/shiftcore/internal/timer"
	"github.com/caxulex/shiftcore/pkg/logger"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.Setup(cfg.AppEnv)
	log.Info("application_startup", "env", cfg.AppEnv)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 1.0,
			Environment:      cfg.AppEnv,
		}); err != nil {
			log.Error("sentry_init_failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
			log.Info("sentry_initialized")
		}
	} else {
		log.Warn("sentry_dsn_missing", "details", "skipping_init")
	}

	ctx := context.Background()

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database_connect_failed", "error", err)
		os.Exit(1)
	}
	defer pg.Close()
	log.Info("database_connected")

	cache, err := kv.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Error("redis_connect_failed", "error", err)
		os.Exit(1)
	}
	defer cache.Close()
	log.Info("redis_connected")

	identitySvc := identity.NewService(cfg, pg, cache)
	loginsecGuard := loginsec.New(cache, cfg.LoginLockThreshold, cfg.LoginLockWindow)
	rateLimiter := access.NewRateLimiter(cache, cfg.RateLimitGeneralPerMin, cfg.RateLimitAuthPerMin)
	guard := access.New(identitySvc, rateLimiter)

	hub := presence.New(pg)
	if err := hub.Reload(ctx); err != nil {
		log.Error("presence_reload_failed", "error", err)
		os.Exit(1)
	}
	log.Info("presence_reloaded")

	timerEngine := timer.New(pg, hub)

	registry := realtime.NewRegistry(hub, cache, cfg.WSOutboundQueue, cfg.WSIdleTimeout, log)

	auditLogger := audit.NewJSONLogger()

	var allowedOrigins []string
	if raw := os.Getenv("CORS_ALLOWED_ORIGINS"); raw != "" {
		allowedOrigins = strings.Split(raw, ",")
	}

	server := api.NewServer(pg, cache, identitySvc, loginsecGuard, guard, timerEngine, hub, registry, auditLogger, allowedOrigins, cfg.AllowPublicRegistration, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("server_listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("server_startup_failed", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		log.Info("shutdown_signal_received", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful_shutdown_failed", "error", err)
			if err := srv.Close(); err != nil {
				log.Error("server_force_close_failed", "error", err)
			}
		}

		log.Info("server_shutdown_complete")
	}
}
