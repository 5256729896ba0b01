package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/formwell/formwell-portal/internal/auth"
	"github.com/formwell/formwell-portal/internal/rbac"
	"github.com/formwell/formwell-portal/internal/shared"
	_ "github.com/formwell/formwell-portal/testing"
)

type stubRepo struct {
	user *auth.User
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, auth.ErrUserNotFound
	}
	return s.user, nil
}

func routes(h *auth.Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/auth", h.MountRoutes)
	return r
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newAuthHandler(t *testing.T, repo auth.Repository) (*auth.Handler, *shared.SessionManager, *auth.TokenIssuer) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "session-secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	tokens := auth.NewTokenIssuer("jwtsecret", time.Hour)
	return auth.NewHandler(nil, auth.NewService(repo), tokens, sessionManager, csrfManager), sessionManager, tokens
}

func doLogin(t *testing.T, h *auth.Handler, sm *shared.SessionManager, body string) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	routes(h).ServeHTTP(rec, req)
	require.NoError(t, sm.Commit(ctx, rec, sess))
	return rec, sess
}

func TestLoginSuccess(t *testing.T) {
	user := &auth.User{ID: "u-1", Email: "owner@acme.test", PasswordHash: hashed(t, "correct-horse"), Role: rbac.RoleClient, IsActive: true}
	h, sm, tokens := newAuthHandler(t, &stubRepo{user: user})

	rec, sess := doLogin(t, h, sm, `{"email":"owner@acme.test","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		UserID    string `json:"userId"`
		Role      string `json:"role"`
		Token     string `json:"token"`
		CSRFToken string `json:"csrfToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "u-1", body.UserID)
	assert.Equal(t, "CLIENT", body.Role)
	assert.NotEmpty(t, body.CSRFToken)

	actor, err := tokens.Verify(body.Token)
	require.NoError(t, err)
	assert.Equal(t, &rbac.Actor{Role: rbac.RoleClient, UserID: "u-1"}, actor)

	assert.Equal(t, "u-1", sess.User())
	assert.Equal(t, "CLIENT", sess.Role())
	assert.False(t, sess.IsNew(), "session should be persisted after login")
}

func TestLoginInvalidCredentials(t *testing.T) {
	user := &auth.User{ID: "u-1", Email: "owner@acme.test", PasswordHash: hashed(t, "correct-horse"), Role: rbac.RoleClient, IsActive: true}
	h, sm, _ := newAuthHandler(t, &stubRepo{user: user})

	rec, sess := doLogin(t, h, sm, `{"email":"owner@acme.test","password":"wrong-password"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, sess.User())

	rec, _ = doLogin(t, h, sm, `{"email":"nobody@acme.test","password":"correct-horse"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRejectsInactiveAndUnknownRole(t *testing.T) {
	inactive := &auth.User{ID: "u-2", Email: "gone@acme.test", PasswordHash: hashed(t, "correct-horse"), Role: rbac.RoleAdmin, IsActive: false}
	h, sm, _ := newAuthHandler(t, &stubRepo{user: inactive})
	rec, _ := doLogin(t, h, sm, `{"email":"gone@acme.test","password":"correct-horse"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	odd := &auth.User{ID: "u-3", Email: "odd@acme.test", PasswordHash: hashed(t, "correct-horse"), Role: "OWNER", IsActive: true}
	h, sm, _ = newAuthHandler(t, &stubRepo{user: odd})
	rec, _ = doLogin(t, h, sm, `{"email":"odd@acme.test","password":"correct-horse"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginValidation(t *testing.T) {
	h, sm, _ := newAuthHandler(t, &stubRepo{})
	rec, _ := doLogin(t, h, sm, `{"email":"not-an-email","password":"short"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Email")
	assert.Contains(t, rec.Body.String(), "Password")
}

func TestMe(t *testing.T) {
	h, _, _ := newAuthHandler(t, &stubRepo{})

	rec := httptest.NewRecorder()
	routes(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"authenticated":false`)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	ctx := rbac.ContextWithActor(req.Context(), &rbac.Actor{Role: rbac.RoleConsultant, UserID: "c-1"})
	ctx = shared.ContextWithAuthSource(ctx, shared.AuthBearer)
	rec = httptest.NewRecorder()
	routes(h).ServeHTTP(rec, req.WithContext(ctx))
	assert.Contains(t, rec.Body.String(), `"role":"CONSULTANT"`)
	assert.Contains(t, rec.Body.String(), `"source":"bearer"`)
}
