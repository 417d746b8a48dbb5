package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cnc-operator-console/internal/config"
	"cnc-operator-console/internal/guard"
	"cnc-operator-console/internal/handler"
	"cnc-operator-console/internal/middleware"
	"cnc-operator-console/internal/model"
)

func New(
	cfg *config.Config,
	authMiddleware *middleware.AuthMiddleware,
	authHandler *handler.AuthHandler,
	sessionHandler *handler.SessionHandler,
	auditHandler *handler.AuditHandler,
	eventsHandler *handler.EventsHandler,
) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(api chi.Router) {
		// The event stream is long-lived and sits outside the request
		// timeout; StreamTimeout bounds it instead.
		api.With(
			authMiddleware.RequireAuth,
			middleware.StreamTimeout(cfg.StreamMaxDuration, cfg.StreamIdleTimeout),
		).Get("/events", eventsHandler.Stream)

		api.Group(func(timed chi.Router) {
			timed.Use(middleware.Timeout(cfg.RequestTimeout))

			timed.Route("/auth", func(auth chi.Router) {
				auth.Post("/login", authHandler.Login)
				auth.Post("/refresh", authHandler.Refresh)
				auth.Post("/emergency", authHandler.Emergency)
				auth.With(authMiddleware.RequireAuth).Post("/logout", authHandler.Logout)
				auth.With(authMiddleware.RequireAuth).Get("/me", authHandler.Me)
			})

			timed.Get("/session", sessionHandler.Get)
			timed.With(authMiddleware.RequireAuth).Post("/session/activity", sessionHandler.Activity)

			timed.With(
				authMiddleware.RequireAuth,
				authMiddleware.Require(guard.Requirement{Role: model.RoleAdmin}),
			).Get("/audit", auditHandler.List)
		})
	})

	return r
}
