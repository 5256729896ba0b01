package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/formwell/formwell-portal/internal/platform/httpx"
)

// PermissionsHandler exposes grant management and access checks.
type PermissionsHandler struct {
	logger    *slog.Logger
	service   *Service
	rbac      Middleware
	validator *validator.Validate
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, rbac Middleware) *PermissionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionsHandler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/check", h.check)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(RoleAdmin))
		r.Get("/{consultantID}", h.list)
		r.Put("/{consultantID}", h.upsert)
		r.Put("/{consultantID}/grants", h.replace)
		r.Delete("/{consultantID}/{resource}", h.revoke)
	})
}

type grantRequest struct {
	Resource  string `json:"resource" validate:"required,max=64"`
	CanRead   bool   `json:"canRead"`
	CanWrite  bool   `json:"canWrite"`
	CanDelete bool   `json:"canDelete"`
}

type replaceRequest struct {
	Grants []grantRequest `json:"grants" validate:"max=64,dive"`
}

type checkResponse struct {
	Role     string `json:"role"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Allowed  bool   `json:"allowed"`
}

func (h *PermissionsHandler) check(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "resource is required")
		return
	}
	action, err := ParseAction(r.URL.Query().Get("action"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := ActorFromContext(r.Context())
	allowed, err := h.service.Authorize(r.Context(), actor, resource, action)
	if err != nil {
		h.logger.Error("permissions check", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	role := RoleVisitor
	if actor != nil {
		role = actor.Role
	}
	httpx.JSON(w, http.StatusOK, checkResponse{Role: string(role), Resource: resource, Action: action.String(), Allowed: allowed})
}

func (h *PermissionsHandler) list(w http.ResponseWriter, r *http.Request) {
	consultantID, ok := consultantIDParam(w, r)
	if !ok {
		return
	}
	grants, err := h.service.Grants(r.Context(), consultantID)
	if err != nil {
		h.logger.Error("list grants", slog.String("consultant_id", consultantID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if grants == nil {
		grants = []Grant{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"consultantId": consultantID, "grants": grants})
}

func (h *PermissionsHandler) upsert(w http.ResponseWriter, r *http.Request) {
	consultantID, ok := consultantIDParam(w, r)
	if !ok {
		return
	}
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	stored, err := h.service.UpsertGrant(r.Context(), consultantID, Grant{
		Resource:  req.Resource,
		CanRead:   req.CanRead,
		CanWrite:  req.CanWrite,
		CanDelete: req.CanDelete,
	})
	if err != nil {
		h.respondServiceError(w, "upsert grant", err)
		return
	}
	h.logger.Info("grant updated", slog.String("consultant_id", consultantID), slog.String("resource", stored.Resource))
	httpx.JSON(w, http.StatusOK, stored)
}

func (h *PermissionsHandler) replace(w http.ResponseWriter, r *http.Request) {
	consultantID, ok := consultantIDParam(w, r)
	if !ok {
		return
	}
	var req replaceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	grants := make([]Grant, 0, len(req.Grants))
	for _, g := range req.Grants {
		grants = append(grants, Grant{Resource: g.Resource, CanRead: g.CanRead, CanWrite: g.CanWrite, CanDelete: g.CanDelete})
	}
	stored, err := h.service.ReplaceGrants(r.Context(), consultantID, grants)
	if err != nil {
		h.respondServiceError(w, "replace grants", err)
		return
	}
	h.logger.Info("grants replaced", slog.String("consultant_id", consultantID), slog.Int("count", len(stored)))
	httpx.JSON(w, http.StatusOK, map[string]any{"consultantId": consultantID, "grants": stored})
}

func (h *PermissionsHandler) revoke(w http.ResponseWriter, r *http.Request) {
	consultantID, ok := consultantIDParam(w, r)
	if !ok {
		return
	}
	resource := chi.URLParam(r, "resource")
	if err := h.service.RevokeGrant(r.Context(), consultantID, resource); err != nil {
		h.respondServiceError(w, "revoke grant", err)
		return
	}
	h.logger.Info("grant revoked", slog.String("consultant_id", consultantID), slog.String("resource", resource))
	w.WriteHeader(http.StatusNoContent)
}

// consultantIDParam reads the consultant id path segment, which must be a UUID.
func consultantIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "consultantID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "consultant id must be a UUID")
		return "", false
	}
	return id.String(), true
}

func (h *PermissionsHandler) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidGrant):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
