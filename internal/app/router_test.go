package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncompliance/ncompliance/internal/dashboard"
	"github.com/ncompliance/ncompliance/internal/observability"
	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/regulations"
	"github.com/ncompliance/ncompliance/internal/shared"
	_ "github.com/ncompliance/ncompliance/testing"
)

type noActors struct{}

func (noActors) LoadActor(ctx context.Context, id int64) (rbac.Actor, error) {
	return rbac.Actor{}, httpx.ErrNotFound
}

type emptyDashboard struct{}

func (emptyDashboard) Regulations(context.Context, rbac.Actor, dashboard.Scope) ([]regulations.Regulation, error) {
	return nil, nil
}

func (emptyDashboard) CategoryCounts(context.Context, rbac.Actor, bool) (map[regulations.Category]int, error) {
	return nil, nil
}

func (emptyDashboard) FavoriteIDs(context.Context, int64) ([]int64, error) {
	return nil, nil
}

func newTestRouter(t *testing.T, checks map[string]Pinger) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, RateLimit: 1000}
	mw := rbac.Middleware{Directory: noActors{}, Logger: logger}
	return NewRouter(RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   shared.NewSessionManager(client, "nc_session", "secret", time.Hour, false),
		CSRFManager:      shared.NewCSRFManager("csrf-secret"),
		RBACMiddleware:   mw,
		Metrics:          observability.NewMetrics(),
		Checks:           checks,
		DashboardHandler: dashboard.NewHandler(logger, dashboard.NewService(emptyDashboard{}, dashboard.NewOrder(nil, nil))),
	})
}

func TestHealthzReportsChecks(t *testing.T) {
	router := newTestRouter(t, map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return nil }),
		"redis":    PingFunc(func(context.Context) error { return errors.New("refused") }),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"status": "degraded", "postgres": "up", "redis": "down"}, body)
}

func TestProtectedRoutesRequireLogin(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rr.Header().Get("Set-Cookie"))
}

func TestUnsafeMethodsRequireCSRFToken(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/dashboard/", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestMetricsAndNotFound(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ncompliance_http_requests_total")
}
