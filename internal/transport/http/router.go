// Package httpapi assembles the HTTP surface: middleware chain, health and
// metrics endpoints, and the per-component handlers mounted behind
// authentication.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	disputehandler "geekship/internal/dispute/handler"
	identityhandler "geekship/internal/identity/handler"
	licensehandler "geekship/internal/license/handler"
	"geekship/internal/platform/middleware"
	srhandler "geekship/internal/servicerequest/handler"
	"geekship/internal/transport/http/shared"
)

// HealthChecker reports readiness of one backing dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps carries everything the router mounts.
type Deps struct {
	Identity        *identityhandler.Handler
	Licenses        *licensehandler.Handler
	ServiceRequests *srhandler.Handler
	Disputes        *disputehandler.Handler

	Validator middleware.JWTValidator
	Logger    *slog.Logger
	// Health lists optional dependency probes for /healthz; nil entries are
	// skipped.
	Health map[string]HealthChecker
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", healthHandler(d.Health))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(d.Validator, d.Logger))
		d.Identity.Register(r)
		d.Licenses.Register(r)
		d.ServiceRequests.Register(r)
		d.Disputes.Register(r)
	})
	return r
}

func healthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Health(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = err.Error()
			}
		}
		shared.WriteJSON(w, status, body)
	}
}
