package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/aegis-desktop/aegis/internal/audit"
	"github.com/aegis-desktop/aegis/internal/auth"
	"github.com/aegis-desktop/aegis/internal/authz"
	"github.com/aegis-desktop/aegis/internal/coordinator"
	"github.com/aegis-desktop/aegis/internal/gateway"
	"github.com/aegis-desktop/aegis/internal/observability"
	"github.com/aegis-desktop/aegis/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthHandler        *auth.Handler
	AuthzHandler       *authz.Handler
	GatewayHandler     *gateway.Handler
	AuditHandler       *audit.Handler
	CoordinatorHandler *coordinator.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Aegis defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.AuthzHandler != nil {
			r.Route("/authz", params.AuthzHandler.MountRoutes)
		}
		if params.CoordinatorHandler != nil {
			r.Route("/security", params.CoordinatorHandler.MountRoutes)
		}
		if params.GatewayHandler != nil {
			r.Route("/gateway", params.GatewayHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
