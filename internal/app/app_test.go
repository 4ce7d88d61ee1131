package app

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habilita/habilita/internal/auth"
	"github.com/habilita/habilita/internal/observability"
	"github.com/habilita/habilita/internal/shared"
	"github.com/habilita/habilita/internal/view"
)

func TestLoadConfigReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "habilita.env")
	require.NoError(t, os.WriteFile(envFile, []byte("SESSION_SECRET=from-file\nCSRF_SECRET=csrf\nBACKEND_URL=http://backend.local/api\nIMPORT_PREVIEW_TTL=5m\n"), 0o600))
	t.Setenv("ENV_FILE", envFile)
	t.Setenv("SESSION_SECRET", "from-env")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.SessionSecret)
	assert.Equal(t, "csrf", cfg.CSRFSecret)
	assert.Equal(t, "http://backend.local/api", cfg.BackendURL)
	assert.Equal(t, 5*time.Minute, cfg.ImportPreviewTTL)
	assert.Equal(t, "es-CO", cfg.LocaleTag().String())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsBadLocale(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("ENV_FILE", "")
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("LOCALE", "no such locale!")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "LOCALE")
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	templates, err := view.NewEngine()
	require.NoError(t, err)
	sessions := shared.NewSessionManager(client, "habilita_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf")
	authHandler := auth.NewHandler(nil, auth.NewService(nil, nil), templates, sessions, csrf)

	return NewRouter(RouterParams{
		Config:         &Config{AppEnv: "test"},
		SessionManager: sessions,
		CSRFManager:    csrf,
		AuthHandler:    authHandler,
		Metrics:        observability.NewMetrics(),
	})
}

func TestRouterPublicEndpoints(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Empty(t, rr.Header().Get("Set-Cookie"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterLoginPageSetsSessionAndHeaders(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Set-Cookie"), "habilita_session=")
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, rr.Header().Get("Content-Security-Policy"), "default-src 'self'")
}

func TestRouterRequiresSession(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/auth/login", rr.Header().Get("Location"))
}

func TestRouterRejectsPostWithoutCSRF(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
