package api

import (
	"log/slog"

	"github.com/caxulex/shiftcore/internal/access"
	customMiddleware "github.com/caxulex/shiftcore/internal/api/middleware"
	"github.com/caxulex/shiftcore/internal/audit"
	"github.com/caxulex/shiftcore/internal/identity"
	"github.com/caxulex/shiftcore/internal/kv"
	"github.com/caxulex/shiftcore/internal/loginsec"
	"github.com/caxulex/shiftcore/internal/presence"
	"github.com/caxulex/shiftcore/internal/realtime"
	"github.com/caxulex/shiftcore/internal/store"
	"github.com/caxulex/shiftcore/internal/timer"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server bundles the chi router with the dependencies its handlers and
// health check need.
type Server struct {
	Router *chi.Mux
	Store  store.Store
	KV     kv.KV
	Logger *slog.Logger
}

// NewServer wires the full middleware chain and route table over the
// given component instances.
func NewServer(
	st store.Store,
	cache kv.KV,
	identitySvc *identity.Service,
	loginsecGuard *loginsec.Guard,
	guard *access.Guard,
	timerEngine *timer.Engine,
	hub *presence.Hub,
	registry *realtime.Registry,
	auditLogger audit.Logger,
	allowedOrigins []string,
	allowPublicRegistration bool,
	logger *slog.Logger,
) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
	r.Use(sentryHandler.Handle)

	r.Use(customMiddleware.RequestLogger)
	r.Use(customMiddleware.PanicRecovery)
	r.Use(customMiddleware.CORS(allowedOrigins))

	authHandler := NewAuthHandler(identitySvc, loginsecGuard, st, auditLogger, allowPublicRegistration, logger)
	timeHandler := NewTimeHandler(timerEngine, hub, st)
	wsHandler := NewWSHandler(guard, registry)
	adminHandler := NewAdminHandler(st)

	server := &Server{Router: r, Store: st, KV: cache, Logger: logger}

	r.Get("/health", server.HealthHandler())

	r.Route("/auth", func(r chi.Router) {
		r.With(customMiddleware.RateLimit(guard, access.BucketAuth)).Post("/register", authHandler.Register)
		r.With(customMiddleware.RateLimit(guard, access.BucketAuth)).Post("/login", authHandler.Login)
		r.With(customMiddleware.RateLimit(guard, access.BucketAuth)).Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.RequireAuth(guard))
			r.Get("/me", authHandler.Me)
		})
	})

	r.Get("/ws", wsHandler.Upgrade)

	r.Route("/time", func(r chi.Router) {
		r.Use(customMiddleware.RequireAuth(guard))
		r.Use(customMiddleware.RateLimit(guard, access.BucketGeneral))

		r.Post("/start", timeHandler.Start)
		r.Post("/stop", timeHandler.Stop)
		r.Post("/", timeHandler.CreateManual)
		r.Put("/{id}", timeHandler.Update)
		r.Delete("/{id}", timeHandler.Delete)
		r.Get("/", timeHandler.List)
		r.Get("/active", timeHandler.ActiveSnapshot)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(customMiddleware.RequireAuth(guard))
		r.Use(customMiddleware.RequireRole("company_admin"))
		r.Post("/invitations", adminHandler.CreateInvitation)
	})

	return server
}
