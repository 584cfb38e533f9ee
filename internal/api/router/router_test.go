package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"shift-swap/backend/config"
	"shift-swap/backend/internal/api/handler"
	"shift-swap/backend/internal/metrics"
	"shift-swap/backend/internal/service"
	"shift-swap/backend/pkg/jwt"
)

func newTestRouter(t *testing.T) (http.Handler, *jwt.Manager) {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{BodyLimit: 1 << 20},
		Auth: config.AuthConfig{
			JWTSecret:      "test-secret-key-for-unit-testing-2026",
			AccessTokenTTL: 15 * time.Minute,
		},
	}
	jwtMgr := jwt.NewManager(&cfg.Auth)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	collector.ObserveOperation(metrics.OpClaim, nil)

	// 只验证路由层，不会触达 Service
	h := handler.NewHandler(&service.Service{})
	return Setup(cfg, h, jwtMgr, nil, registry, zap.NewNop()), jwtMgr
}

func request(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSetup_OpsEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	w := request(r, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("/health expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("response should carry X-Request-ID")
	}

	w = request(r, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "shift_swap_operations_total") {
		t.Error("/metrics should expose swap operation counters")
	}
}

func TestSetup_AuthAndRoles(t *testing.T) {
	r, jwtMgr := newTestRouter(t)

	if w := request(r, "GET", "/api/v1/shifts", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated request expected 401, got %d", w.Code)
	}

	workerToken, _ := jwtMgr.GenerateAccessToken("w1", "worker")
	managerToken, _ := jwtMgr.GenerateAccessToken("m1", "manager")

	forbidden := []struct {
		method, path, token string
	}{
		{"POST", "/api/v1/swap-requests/r1/approve", workerToken},
		{"POST", "/api/v1/swap-requests/r1/reject", workerToken},
		{"POST", "/api/v1/swap-requests/decide", workerToken},
		{"GET", "/api/v1/swap-requests/export", workerToken},
		{"POST", "/api/v1/shifts/s1/claim", managerToken},
	}
	for _, tt := range forbidden {
		if w := request(r, tt.method, tt.path, tt.token); w.Code != http.StatusForbidden {
			t.Errorf("%s %s expected 403, got %d", tt.method, tt.path, w.Code)
		}
	}
}
