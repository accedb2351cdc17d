package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/authpay/server/internal/http/handlers"
	"github.com/authpay/server/internal/middleware"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(challengeHandler *handlers.ChallengeHandler, healthHandler *handlers.HealthHandler, log *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)

	r.Get("/", handlers.HandleRoot)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/authpay", func(r chi.Router) {
		r.Get("/health", healthHandler.ServeHTTP)
		r.Post("/init", challengeHandler.HandleInit)
		r.Post("/verify", challengeHandler.HandleVerify)
		r.Post("/mfa/send", challengeHandler.HandleMFASend)
	})

	return r
}
