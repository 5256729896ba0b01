package bundles

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/formwell/formwell-portal/internal/platform/httpx"
	"github.com/formwell/formwell-portal/internal/rbac"
)

// Handler serves the checkout catalogue.
type Handler struct {
	logger    *slog.Logger
	catalog   *Catalog
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, catalog *Catalog, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, catalog: catalog, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers bundle routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(rbac.RoleClient))
		r.Post("/total", h.total)
	})
}

type totalRequest struct {
	PlanIDs []string `json:"planIds" validate:"required,min=1,max=10,dive,required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"plans": h.catalog.Plans()})
}

func (h *Handler) total(w http.ResponseWriter, r *http.Request) {
	var req totalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	summary, err := h.catalog.Total(req.PlanIDs)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			httpx.Problem(w, http.StatusBadRequest, "Unknown Plan", err.Error())
			return
		}
		h.logger.Error("bundle total", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
