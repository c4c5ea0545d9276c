package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/blockhaven/blockhaven/internal/shared"
)

func newStackRouter(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")

	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:         &Config{AppRequestTimeout: 5 * time.Second},
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
	}) {
		r.Use(mw)
	}
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func TestSessionLoadMintsCSRFToken(t *testing.T) {
	router := newStackRouter(t)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, res.Code)
	require.NotEmpty(t, res.Header().Get("X-CSRF-Token"))
	require.NotEmpty(t, res.Result().Cookies())
}

func TestMutatingRequestPassesWithAdvertisedToken(t *testing.T) {
	router := newStackRouter(t)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/ping", nil))
	token := res.Header().Get("X-CSRF-Token")
	require.NotEmpty(t, token)
	cookies := res.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.AddCookie(cookies[0])
	req.Header.Set("X-CSRF-Token", token)
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusNoContent, res.Code)
}

func TestMutatingRequestWithoutTokenForbidden(t *testing.T) {
	router := newStackRouter(t)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/ping", nil))
	cookies := res.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.AddCookie(cookies[0])
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusForbidden, res.Code)
}
