package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ncompliance/ncompliance/internal/auth"
	"github.com/ncompliance/ncompliance/internal/commoncodes"
	"github.com/ncompliance/ncompliance/internal/dashboard"
	"github.com/ncompliance/ncompliance/internal/notifications"
	"github.com/ncompliance/ncompliance/internal/observability"
	"github.com/ncompliance/ncompliance/internal/orgs"
	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/regulations"
	"github.com/ncompliance/ncompliance/internal/reports"
	"github.com/ncompliance/ncompliance/internal/shared"
	"github.com/ncompliance/ncompliance/internal/users"
	"github.com/ncompliance/ncompliance/jobs"
)

// Pinger reports backing service health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics
	// Checks are pinged by /healthz, keyed by name.
	Checks map[string]Pinger

	AuthHandler          *auth.Handler
	RegulationsHandler   *regulations.Handler
	NotificationsHandler *notifications.Handler
	CodesHandler         *commoncodes.Handler
	ReportsHandler       *reports.Handler
	DashboardHandler     *dashboard.Handler
	OrgsHandler          *orgs.Handler
	UsersHandler         *users.Handler
	JobHandler           *jobs.Handler
}

// NewRouter constructs the chi.Router with portal defaults. Everything but
// /auth, /healthz and /metrics requires an authenticated, active user.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", healthHandler(params.Checks, params.Logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		r.Use(params.RBACMiddleware.Authenticate)

		mount := func(prefix string, h interface{ MountRoutes(chi.Router) }) {
			r.Route(prefix, h.MountRoutes)
		}
		if params.RegulationsHandler != nil {
			mount("/regulations", params.RegulationsHandler)
		}
		if params.NotificationsHandler != nil {
			mount("/notifications", params.NotificationsHandler)
		}
		if params.CodesHandler != nil {
			mount("/codes", params.CodesHandler)
		}
		if params.ReportsHandler != nil {
			mount("/reports", params.ReportsHandler)
		}
		if params.DashboardHandler != nil {
			mount("/dashboard", params.DashboardHandler)
		}
		if params.OrgsHandler != nil {
			mount("/orgs", params.OrgsHandler)
		}
		if params.UsersHandler != nil {
			mount("/users", params.UsersHandler)
		}
		if params.JobHandler != nil {
			r.With(params.RBACMiddleware.RequireAction(rbac.ActionUserManage)).Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "")
	})
	return r
}

func healthHandler(checks map[string]Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		out := map[string]string{"status": "ok"}
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Ping(ctx); err != nil {
				logger.Warn("health check failed", slog.String("check", name), slog.Any("error", err))
				out[name] = "down"
				out["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			out[name] = "up"
		}
		httpx.JSON(w, status, out)
	}
}
