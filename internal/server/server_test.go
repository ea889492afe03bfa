package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgserver "github.com/DjordjeVuckovic/index-relay/pkg/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(hc pkgserver.HealthChecker) *Server {
	return New(&Config{Port: "8080", CorsOrigins: []string{"*"}}, hc).
		SetupMiddlewares().
		SetupErrorHandler().
		SetupHealthChecks("/health")
}

func serve(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	down := pkgserver.HealthCheckerFunc(func(context.Context) bool { return false })

	tests := []struct {
		name       string
		checker    pkgserver.HealthChecker
		wantStatus int
		wantChecks map[string]bool
	}{
		{name: "ok", checker: pkgserver.NewOkHealthChecker(), wantStatus: http.StatusOK},
		{
			name: "one unhealthy",
			checker: pkgserver.NamedHealthCheckers{
				"source": pkgserver.NewOkHealthChecker(),
				"sink":   down,
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]bool{"source": true, "sink": false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newTestServer(tt.checker), "/health")
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body struct {
				Status string          `json:"status"`
				Checks map[string]bool `json:"checks"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantChecks, body.Checks)
		})
	}
}

func TestStats(t *testing.T) {
	s := newTestServer(pkgserver.NewOkHealthChecker()).
		SetupStats("/stats", func() any { return map[string]int{"accepted": 3} })

	rec := serve(s, "/stats")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"accepted":3}`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := newTestServer(pkgserver.NewOkHealthChecker()).SetupMetrics("/metrics", reg)

	rec := serve(s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_total 1"))
}

func TestUnknownRoute(t *testing.T) {
	rec := serve(newTestServer(pkgserver.NewOkHealthChecker()), "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("CORS_ORIGINS", "http://a, http://b")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.CorsOrigins)

	t.Setenv("HTTP_PORT", "99999")
	_, err = LoadConfig()
	assert.Error(t, err)
}
