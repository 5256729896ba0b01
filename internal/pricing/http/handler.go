package pricinghttp

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/formwell/formwell-portal/internal/platform/httpx"
	"github.com/formwell/formwell-portal/internal/pricing"
	"github.com/formwell/formwell-portal/internal/rbac"
)

// QuoteRecorder observes every computed quote.
type QuoteRecorder interface {
	RecordQuote(tierID string, discountPercentage, finalPrice float64)
}

// Handler serves the public price calculator.
type Handler struct {
	logger    *slog.Logger
	engine    *pricing.Engine
	formatter *pricing.Formatter
	recorder  QuoteRecorder
	validator *validator.Validate
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs the calculator handler. recorder may be nil.
func NewHandler(logger *slog.Logger, engine *pricing.Engine, formatter *pricing.Formatter, recorder QuoteRecorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	limiter := httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		if actor := rbac.ActorFromContext(r.Context()); actor != nil && actor.UserID != "" {
			return "user:" + actor.UserID, nil
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return "ip:" + r.RemoteAddr, nil
		}
		return "ip:" + host, nil
	}))
	return &Handler{
		logger:    logger,
		engine:    engine,
		formatter: formatter,
		recorder:  recorder,
		validator: validator.New(),
		rateLimit: limiter,
	}
}

// MountRoutes registers calculator endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/catalog", h.catalog)
	r.With(h.rateLimit).Post("/quote", h.quote)
}

type quoteRequest struct {
	TierID       string   `json:"tierId" validate:"required,max=64"`
	Jurisdiction string   `json:"jurisdiction" validate:"max=64"`
	AddonIDs     []string `json:"addonIds" validate:"max=32,dive,required,max=64"`
}

type quoteResponse struct {
	TierID       string                `json:"tierId"`
	Jurisdiction string                `json:"jurisdiction"`
	AddonIDs     []string              `json:"addonIds"`
	Quote        pricing.Quote         `json:"quote"`
	Display      *pricing.DisplayQuote `json:"display,omitempty"`
}

type catalogResponse struct {
	Tiers         []pricing.Tier     `json:"tiers"`
	Jurisdictions map[string]float64 `json:"jurisdictions"`
	Addons        []pricing.Addon    `json:"addons"`
}

func (h *Handler) catalog(w http.ResponseWriter, r *http.Request) {
	c := h.engine.Catalog()
	httpx.JSON(w, http.StatusOK, catalogResponse{
		Tiers:         c.Tiers(),
		Jurisdictions: c.Jurisdictions(),
		Addons:        c.Addons(),
	})
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	if req.AddonIDs == nil {
		req.AddonIDs = []string{}
	}

	q, err := h.engine.FinalQuote(req.TierID, req.Jurisdiction, req.AddonIDs)
	if err != nil {
		if errors.Is(err, pricing.ErrTierNotFound) {
			httpx.Problem(w, http.StatusBadRequest, "Unknown Tier", err.Error())
			return
		}
		h.logger.Error("pricing quote", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if h.recorder != nil {
		h.recorder.RecordQuote(req.TierID, q.DiscountPercentage, q.FinalPrice)
	}

	resp := quoteResponse{
		TierID:       req.TierID,
		Jurisdiction: req.Jurisdiction,
		AddonIDs:     req.AddonIDs,
		Quote:        q,
	}
	if h.formatter != nil {
		display := h.formatter.Display(q)
		resp.Display = &display
	}
	httpx.JSON(w, http.StatusOK, resp)
}
