package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/formwell/formwell-portal/internal/auth"
	"github.com/formwell/formwell-portal/internal/bundles"
	"github.com/formwell/formwell-portal/internal/observability"
	"github.com/formwell/formwell-portal/internal/platform/httpx"
	pricinghttp "github.com/formwell/formwell-portal/internal/pricing/http"
	"github.com/formwell/formwell-portal/internal/rbac"
	"github.com/formwell/formwell-portal/internal/shared"
)

// Pinger reports whether a backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

// Ping calls f.
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Tokens         TokenVerifier
	RBACMiddleware rbac.Middleware

	AuthHandler        *auth.Handler
	PricingHandler     *pricinghttp.Handler
	BundlesHandler     *bundles.Handler
	PermissionsHandler *rbac.PermissionsHandler
	Metrics            *observability.Metrics

	// Readiness checks keyed by dependency name.
	Checks map[string]Pinger
}

// NewRouter constructs the chi.Router with portal defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Tokens:         params.Tokens,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readinessHandler(params.Logger, params.Checks))

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.PricingHandler != nil {
		r.Route("/pricing", params.PricingHandler.MountRoutes)
	}
	if params.BundlesHandler != nil {
		r.Route("/bundles", params.BundlesHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	r.With(params.RBACMiddleware.RequireAccess("dashboard", rbac.ActionRead)).
		Get("/dashboard", dashboardHandler)
	r.With(params.RBACMiddleware.RequireAccessParam("resource", rbac.ActionRead)).
		Get("/dashboard/{resource}", dashboardHandler)

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

type dashboardResponse struct {
	Resource string `json:"resource"`
	Role     string `json:"role"`
	UserID   string `json:"userId"`
}

// dashboardHandler answers once the access middleware has let the actor through.
func dashboardHandler(w http.ResponseWriter, r *http.Request) {
	actor := rbac.ActorFromContext(r.Context())
	resource := chi.URLParam(r, "resource")
	if resource == "" {
		resource = "dashboard"
	}
	httpx.JSON(w, http.StatusOK, dashboardResponse{
		Resource: resource,
		Role:     string(actor.Role),
		UserID:   actor.UserID,
	})
}

func readinessHandler(logger *slog.Logger, checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := make(map[string]string, len(checks))
		code := http.StatusOK
		for name, check := range checks {
			if err := check.Ping(ctx); err != nil {
				logger.Warn("readiness check failed", slog.String("dependency", name), slog.Any("error", err))
				status[name] = "down"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "up"
		}
		httpx.JSON(w, code, status)
	}
}
