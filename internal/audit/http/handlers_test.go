package audithttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habilita/habilita/internal/audit"
	"github.com/habilita/habilita/internal/shared"
	"github.com/habilita/habilita/internal/view"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.TimelineRow
	err         error
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, s.err
}

func (s *stubTimelineService) Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.lastFilters = filters
	return s.exportRows, s.err
}

func newAuditHandler(t *testing.T, service *stubTimelineService) http.Handler {
	t.Helper()
	templates, err := view.NewEngine()
	require.NoError(t, err)
	handler := NewHandler(nil, service, templates, nil)
	handler.WithNow(func() time.Time { return time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC) })
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	sess := &shared.Session{}
	sess.SetUser("ana")
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestTimelineRendersRows(t *testing.T) {
	rows := []audit.TimelineRow{{
		At:       time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		Actor:    "auditora",
		Action:   audit.ActionEstadoChange,
		Entity:   audit.EntityAutoevaluacion,
		EntityID: "12",
		Summary:  "estado: EN_REVISION",
	}}
	service := &stubTimelineService{result: audit.Result{Rows: rows, Paging: audit.PagingInfo{Page: 1, PageSize: 20, HasNext: true, NextPage: 2}}}
	rr := get(newAuditHandler(t, service), "/actividad?from=2025-03-01&to=2025-03-15&entity=autoevaluacion")

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "auditora")
	assert.Contains(t, body, "Cambió estado")
	assert.Contains(t, body, `href="/habilitacion/autoevaluaciones/12"`)
	assert.Contains(t, body, "page=2")
	assert.Equal(t, "2025-03-01", service.lastFilters.From.Format("2006-01-02"))
	assert.Equal(t, audit.EntityAutoevaluacion, service.lastFilters.Entity)
}

func TestTimelineDefaultsToLastThirtyDays(t *testing.T) {
	service := &stubTimelineService{}
	rr := get(newAuditHandler(t, service), "/actividad")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "No hay actividad")
	assert.Equal(t, "2025-02-13", service.lastFilters.From.Format("2006-01-02"))
	assert.Equal(t, "2025-03-15", service.lastFilters.To.Format("2006-01-02"))
	assert.Equal(t, 1, service.lastFilters.Page)
	assert.Equal(t, defaultPageSize, service.lastFilters.PageSize)
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	h := newAuditHandler(t, &stubTimelineService{})
	for _, path := range []string{
		"/actividad?from=ayer",
		"/actividad?from=2025-03-10&to=2025-03-01",
		"/actividad?from=2023-01-01&to=2025-03-01",
		"/actividad?page=0",
		"/actividad?entity=journal_entries",
	} {
		rr := get(h, path)
		assert.Equal(t, http.StatusBadRequest, rr.Code, path)
	}
}

func TestTimelineServiceError(t *testing.T) {
	rr := get(newAuditHandler(t, &stubTimelineService{err: errors.New("db down")}), "/actividad")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestExportCSV(t *testing.T) {
	rows := []audit.TimelineRow{{Actor: "auditora", Action: audit.ActionPlanUpdate, Entity: audit.EntityPlanMejora, EntityID: "3"}}
	service := &stubTimelineService{exportRows: rows}
	rr := get(newAuditHandler(t, service), "/actividad/export.csv?from=2025-03-01&to=2025-03-05&actor=aud")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "actividad.csv")
	assert.True(t, strings.HasPrefix(rr.Body.String(), "Fecha,Usuario"))
	assert.Contains(t, rr.Body.String(), "auditora,Actualizó plan,Plan de mejora,3")
	assert.Equal(t, "aud", service.lastFilters.Actor)
}

func TestExportIsRateLimited(t *testing.T) {
	h := newAuditHandler(t, &stubTimelineService{})
	var last int
	for i := 0; i <= rateLimit; i++ {
		last = get(h, "/actividad/export.csv").Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestNotConfigured(t *testing.T) {
	handler := NewHandler(nil, nil, nil, nil)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	rr := get(r, "/actividad")
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}
