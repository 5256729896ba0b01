package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/formwell/formwell-portal/internal/platform/httpx"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireRole admits actors ranked at or above role.
func (m Middleware) RequireRole(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFromContext(r.Context())
			if actor == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
				return
			}
			if !IsRoleAtLeast(actor, role) {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "requires role "+string(role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAccess admits actors allowed to perform action on resource.
func (m Middleware) RequireAccess(resource string, action Action) func(http.Handler) http.Handler {
	return m.requireAccess(func(*http.Request) string { return resource }, action)
}

// RequireAccessParam is RequireAccess with the resource taken from a chi URL parameter.
func (m Middleware) RequireAccessParam(param string, action Action) func(http.Handler) http.Handler {
	return m.requireAccess(func(r *http.Request) string { return chi.URLParam(r, param) }, action)
}

func (m Middleware) requireAccess(resourceOf func(*http.Request) string, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFromContext(r.Context())
			if actor == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
				return
			}
			resource := resourceOf(r)
			allowed, err := m.Service.Authorize(r.Context(), actor, resource, action)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac authorize", slog.String("resource", resource), slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !allowed {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", action.String()+" on "+resource+" not permitted")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
