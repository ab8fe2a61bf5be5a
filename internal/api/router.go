package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps carries the handlers and middleware the router wires up.
type RouterDeps struct {
	AuthHandler  *AuthHandler
	AdminHandler *AdminHandler

	// Authenticate guards the admin routes.
	Authenticate func(http.Handler) http.Handler

	// MetricsRegistry backs the /metrics endpoint.
	MetricsRegistry *prometheus.Registry
}

// NewRouter creates the application router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// Token issuance is the only public admin endpoint.
	r.Post("/admin/token", deps.AuthHandler.Token)

	r.Group(func(r chi.Router) {
		r.Use(deps.Authenticate)

		r.Get("/admin/recovery/stats", deps.AdminHandler.RecoveryStats)
		r.Get("/admin/recovery/summary", deps.AdminHandler.ErrorSummary)
		r.Post("/admin/recovery/maintenance", deps.AdminHandler.RunMaintenance)

		r.Get("/admin/deadletters", deps.AdminHandler.ListDeadLetters)
		r.Post("/admin/deadletters/{id}/retry", deps.AdminHandler.ReplayDeadLetter)

		r.Get("/admin/errors", deps.AdminHandler.ListErrorLogs)
	})

	if deps.MetricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
			deps.MetricsRegistry,
			promhttp.HandlerOpts{},
		))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return r
}
