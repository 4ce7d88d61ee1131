package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/habilita/habilita/internal/jobs"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesRuntimeAndJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	require.NoError(t, jobs.Track("compliance_snapshot").End(nil))
	jobs.SetComplianceRate(87.5)

	body := scrape(t, metrics)
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, `habilita_jobs_total{job="compliance_snapshot",status="success"} 1`)
	assert.Contains(t, body, `habilita_job_last_success_timestamp_seconds{job="compliance_snapshot"}`)
	assert.Contains(t, body, "habilita_compliance_rate_percent 87.5")
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/indicadores")

	req := httptest.NewRequest(http.MethodGet, "/indicadores", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `habilita_http_requests_total{code="418",route="/indicadores"} 1`)
	assert.Contains(t, body, `habilita_http_request_duration_seconds_bucket{route="/indicadores"`)
}

func TestObserveBackendError(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveBackendError(503)
	metrics.ObserveBackendError(502)
	metrics.ObserveBackendError(0)

	body := scrape(t, metrics)
	assert.Contains(t, body, `habilita_backend_errors_total{class="5xx"} 2`)
	assert.Contains(t, body, `habilita_backend_errors_total{class="unreachable"} 1`)

	var nilMetrics *Metrics
	nilMetrics.ObserveBackendError(500)
	rr := httptest.NewRecorder()
	nilMetrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
