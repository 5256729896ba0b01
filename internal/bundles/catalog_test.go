package bundles

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formwell/formwell-portal/internal/rbac"
)

func TestCatalogTotal(t *testing.T) {
	c := DefaultCatalog()

	s, err := c.Total([]string{"basic", "premium"})
	require.NoError(t, err)
	assert.Equal(t, 1298.0, s.Price)
	assert.Equal(t, 918.0, s.Profit)
	assert.InDelta(t, 918.0/1298.0*100, s.Margin, 1e-9)
}

func TestCatalogTotalHasNoVolumeDiscount(t *testing.T) {
	s, err := DefaultCatalog().Total([]string{"enterprise", "enterprise"})
	require.NoError(t, err)
	assert.Equal(t, 9998.0, s.Price)
}

func TestCatalogTotalUnknownPlan(t *testing.T) {
	_, err := DefaultCatalog().Total([]string{"basic", "ultimate"})
	require.ErrorIs(t, err, ErrPlanNotFound)

	_, err = DefaultCatalog().Plan("ultimate")
	require.ErrorIs(t, err, ErrPlanNotFound)
}

func TestCatalogEmptySelection(t *testing.T) {
	s, err := DefaultCatalog().Total(nil)
	require.NoError(t, err)
	assert.Zero(t, s.Price)
	assert.Zero(t, s.Margin)
}

func TestDefaultCatalogHasFivePlans(t *testing.T) {
	plans := DefaultCatalog().Plans()
	require.Len(t, plans, 5)
	for _, p := range plans {
		assert.InDelta(t, p.Profit/p.Price*100, p.Margin, 0.1, p.ID)
	}
}

func newBundleRouter() http.Handler {
	h := NewHandler(nil, DefaultCatalog(), rbac.Middleware{})
	r := chi.NewRouter()
	r.Route("/bundles", h.MountRoutes)
	return r
}

func TestHandlerTotal(t *testing.T) {
	h := newBundleRouter()
	client := &rbac.Actor{Role: rbac.RoleClient, UserID: "u1"}

	do := func(actor *rbac.Actor, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/bundles/total", strings.NewReader(body))
		if actor != nil {
			req = req.WithContext(rbac.ContextWithActor(req.Context(), actor))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := do(client, `{"planIds":["standard"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var s Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, 599.0, s.Price)

	assert.Equal(t, http.StatusBadRequest, do(client, `{"planIds":["nope"]}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(client, `{"planIds":[]}`).Code)
	assert.Equal(t, http.StatusUnauthorized, do(nil, `{"planIds":["standard"]}`).Code)
	assert.Equal(t, http.StatusForbidden, do(&rbac.Actor{Role: rbac.RoleVisitor}, `{"planIds":["standard"]}`).Code)
}

func TestHandlerList(t *testing.T) {
	rec := httptest.NewRecorder()
	newBundleRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bundles/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"enterprise"`)
}
