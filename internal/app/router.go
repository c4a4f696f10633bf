package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-erp/atelier/internal/auth"
	"github.com/atelier-erp/atelier/internal/catalog"
	"github.com/atelier-erp/atelier/internal/inventory"
	"github.com/atelier-erp/atelier/internal/observability"
	"github.com/atelier-erp/atelier/internal/platform/httpx"
	"github.com/atelier-erp/atelier/internal/sales"
	"github.com/atelier-erp/atelier/internal/shared"
	"github.com/atelier-erp/atelier/jobs"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Metrics          *observability.Metrics
	Database         Pinger
	Auth             auth.Middleware
	CatalogHandler   *catalog.Handler
	InventoryHandler *inventory.Handler
	SalesHandler     *sales.Handler
	JobHandler       *jobs.Handler
}

type healthResponse struct {
	Status   string    `json:"status"`
	Database string    `json:"database,omitempty"`
	Build    BuildInfo `json:"build"`
}

// NewRouter constructs the chi.Router with Atelier defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	build := ReadBuildInfo()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Build: build}
		if params.Database != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			resp.Database = "ok"
			if err := params.Database.Ping(ctx); err != nil {
				params.Logger.Warn("health: database ping", slog.Any("error", err))
				resp.Status, resp.Database = "degraded", "unreachable"
				httpx.JSON(w, http.StatusServiceUnavailable, resp)
				return
			}
		}
		httpx.JSON(w, http.StatusOK, resp)
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	admin := params.Auth.RequireRole(shared.RoleAdmin)
	r.Group(func(r chi.Router) {
		r.Use(params.Auth.RequireAuth)
		if params.JobHandler != nil {
			r.With(admin).Route("/jobs", params.JobHandler.MountRoutes)
		}
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(r, admin)
		}
		if params.InventoryHandler != nil {
			params.InventoryHandler.MountRoutes(r)
		}
		if params.SalesHandler != nil {
			params.SalesHandler.MountRoutes(r, admin, params.Auth.RequireManagerPIN)
		}
	})

	return r
}
