package indicatorshttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habilita/habilita/internal/indicators"
	"github.com/habilita/habilita/internal/indicators/export"
	"github.com/habilita/habilita/internal/indicators/importer"
	"github.com/habilita/habilita/internal/indicators/svg"
	"github.com/habilita/habilita/internal/indicators/ui"
	"github.com/habilita/habilita/internal/payload"
	"github.com/habilita/habilita/internal/shared"
	"github.com/habilita/habilita/internal/view"
	"github.com/habilita/habilita/jobs"
)

type fakeBackend struct {
	err error
}

func (f fakeBackend) ListIndicators(context.Context) ([]indicators.Indicator, error) {
	return []indicators.Indicator{
		{ID: 1, Code: "IND-01", Name: "Caídas", MeasurementUnit: "%", MeasurementFrequency: "mensual", Trend: "decreciente", Target: payload.Float(5)},
		{ID: 2, Code: "IND-02", Name: "Satisfacción", MeasurementUnit: "puntos", MeasurementFrequency: "trimestral", Trend: "creciente", Target: payload.Float(80)},
	}, nil
}

func (f fakeBackend) ListHeadquarters(context.Context) ([]indicators.Headquarters, error) {
	return []indicators.Headquarters{{ID: 10, Name: "Sede Norte"}, {ID: 20, Name: "Sede Sur"}}, nil
}

func (f fakeBackend) ListResults(context.Context, indicators.ResultQuery) ([]indicators.RawResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	ind := payload.RefTo[indicators.Indicator]
	hq := payload.RefTo[indicators.Headquarters]
	return []indicators.RawResult{
		{ID: 1, Indicator: ind(1), Headquarters: hq(10), CalculatedValue: payload.Float(3), Year: 2025, Month: 1},
		{ID: 2, Indicator: ind(1), Headquarters: hq(20), CalculatedValue: payload.Float(8), Year: 2025, Month: 2},
		{ID: 3, Indicator: ind(2), Headquarters: hq(10), CalculatedValue: payload.Float(85), Year: 2025, Quarter: 1},
	}, nil
}

type stubPDF struct {
	last  export.DashboardPayload
	calls int
}

func (s *stubPDF) RenderDashboard(_ context.Context, p export.DashboardPayload) ([]byte, error) {
	s.last = p
	s.calls++
	return append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("PDF"), 400)...), nil
}

type fakeCreator struct {
	calls int
}

func (f *fakeCreator) CreateResults(_ context.Context, in []indicators.ResultInput) ([]indicators.RawResult, error) {
	f.calls++
	out := make([]indicators.RawResult, len(in))
	for i := range in {
		out[i] = indicators.RawResult{ID: int64(100 + i)}
	}
	return out, nil
}

type stubQueue struct {
	payloads []jobs.ImportCommitPayload
	err      error
}

func (s *stubQueue) EnqueueImportCommit(_ context.Context, p jobs.ImportCommitPayload) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.payloads = append(s.payloads, p)
	return &asynq.TaskInfo{ID: "import:" + p.BatchID}, nil
}

type lineAdapter func(width, height int, series, target []float64, labels []string, opts svg.LineOpts) (template.HTML, error)

func (a lineAdapter) Line(width, height int, series, target []float64, labels []string, opts svg.LineOpts) (template.HTML, error) {
	return a(width, height, series, target, labels, opts)
}

type barAdapter func(width, height int, values, targets []float64, labels []string, opts svg.BarOpts) (template.HTML, error)

func (a barAdapter) Bars(width, height int, values, targets []float64, labels []string, opts svg.BarOpts) (template.HTML, error) {
	return a(width, height, values, targets, labels, opts)
}

type donutAdapter func(size int, slices []svg.Slice, opts svg.DonutOpts) (template.HTML, error)

func (a donutAdapter) Donut(size int, slices []svg.Slice, opts svg.DonutOpts) (template.HTML, error) {
	return a(size, slices, opts)
}

type fixture struct {
	handler *Handler
	router  chi.Router
	session *shared.Session
	pdf     *stubPDF
	creator *fakeCreator
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, backend fakeBackend, queue ImportQueue) *fixture {
	t.Helper()
	templates, err := view.NewEngine()
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	results := indicators.NewService(backend, quietLogger())
	creator := &fakeCreator{}
	imports := importer.NewService(results, creator, importer.NewStore(client, time.Minute), nil, quietLogger())
	pdf := &stubPDF{}

	handler := NewHandler(quietLogger(), results, templates, shared.NewCSRFManager("secret"),
		lineAdapter(svg.Line), barAdapter(svg.Bars), donutAdapter(svg.Donut),
		Options{PDF: pdf, Importer: imports, Queue: queue})
	handler.WithNow(func() time.Time { return time.Date(2025, 2, 15, 9, 0, 0, 0, time.UTC) })

	sess := &shared.Session{ID: "sess-1"}
	sess.SetUser("ana")
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
		})
	})
	handler.MountRoutes(router)
	return &fixture{handler: handler, router: router, session: sess, pdf: pdf, creator: creator}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	return f.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func TestDashboardRendersChartsAndGaps(t *testing.T) {
	f := newFixture(t, fakeBackend{}, nil)
	rr := f.get("/indicadores?year=2025")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := rr.Body.String()
	assert.Contains(t, body, "Tablero de indicadores")
	assert.Contains(t, body, "<svg")
	assert.Contains(t, body, "Valor frente a meta por sede")
	assert.Contains(t, body, "Evolución de ")
	assert.Contains(t, body, "Sede Sur")
	assert.Contains(t, body, `href="/indicadores/export.csv?year=2025"`)
}

func TestDashboardInvalidFilter(t *testing.T) {
	f := newFixture(t, fakeBackend{}, nil)
	for _, query := range []string{"year=abc", "frequency=hourly", "headquarters=-1", "status=maybe"} {
		rr := f.get("/indicadores?" + query)
		assert.Equal(t, http.StatusBadRequest, rr.Code, query)
	}
}

func TestDashboardRendersWarningsWhenResultsFail(t *testing.T) {
	f := newFixture(t, fakeBackend{err: errors.New("boom")}, nil)
	rr := f.get("/indicadores")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), indicators.WarnResults)
}

func TestResultsTableFiltersAndPaginates(t *testing.T) {
	f := newFixture(t, fakeBackend{}, nil)
	rr := f.get("/indicadores/resultados?headquarters=10&sort=value&dir=desc")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := rr.Body.String()
	assert.Contains(t, body, "2 registros")
	assert.Contains(t, body, "Satisfacción")
	assert.NotContains(t, body, "<td>Sede Sur</td>")
	assert.Less(t, strings.Index(body, "Satisfacción</td>"), strings.Index(body, "Caídas</td>"))
}

func TestCSVExport(t *testing.T) {
	f := newFixture(t, fakeBackend{}, nil)
	rr := f.get("/indicadores/export.csv?status=no_cumple")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), `filename="indicadores-2025-02-15.csv"`)
	body := rr.Body.String()
	assert.Contains(t, body, "ID,Indicador,Código,Sede")
	assert.Contains(t, body, "Sede Sur")
	assert.NotContains(t, body, "Satisfacción")
}

func TestXLSXExport(t *testing.T) {
	f := newFixture(t, fakeBackend{}, nil)
	rr := f.get("/indicadores/export.xlsx")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, xlsxContentType, rr.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")))
}

func TestPDFExport(t *testing.T) {
	f := newFixture(t, fakeBackend{}, nil)
	rr := f.get("/indicadores/reporte.pdf?year=2025&headquarters=10")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Greater(t, rr.Body.Len(), 1024)
	assert.Equal(t, "Año 2025 · Sede Sede Norte", f.pdf.last.Filters)
	assert.Len(t, f.pdf.last.Results, 2)
	assert.NotEmpty(t, f.pdf.last.Charts)
}

func TestPDFWithoutExporter(t *testing.T) {
	f := newFixture(t, fakeBackend{}, nil)
	f.handler.pdf = nil
	rr := httptest.NewRecorder()
	f.handler.HandlePDFForTest(rr, httptest.NewRequest(http.MethodGet, "/indicadores/reporte.pdf", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestAPIResults(t *testing.T) {
	f := newFixture(t, fakeBackend{}, nil)
	rr := f.get("/api/indicadores/resultados?status=cumple")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Results []map[string]any   `json:"results"`
		Summary indicators.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Len(t, body.Results, 2)
	assert.Equal(t, 2, body.Summary.Compliant)

	rr = f.get("/api/indicadores/resultados?year=20x5")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Validation Failed")
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(uploadField, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/indicadores/importar", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

const uploadCSV = "indicador_codigo,sede_id,anio,mes,numerador,denominador\nIND-01,10,2025,3,2,100\nIND-99,10,2025,1,1,1\n"

func TestImportPreviewAndInlineCommit(t *testing.T) {
	f := newFixture(t, fakeBackend{}, nil)

	rr := f.get("/indicadores/importar")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `enctype="multipart/form-data"`)

	rr = f.do(uploadRequest(t, "carga.csv", uploadCSV))
	require.Equal(t, http.StatusSeeOther, rr.Code, rr.Body.String())
	location := rr.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/indicadores/importar/"))

	rr = f.get(location)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "carga.csv")
	assert.Contains(t, body, "indicador desconocido: IND-99")
	assert.Contains(t, body, "Confirmar 1 filas")

	rr = f.do(httptest.NewRequest(http.MethodPost, location+"/confirmar", nil))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, 1, f.creator.calls)
	flash := f.session.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "success", flash.Kind)
	assert.Contains(t, flash.Message, "Se registraron 1 resultados")

	rr = f.get(location)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Importación completada")
	assert.NotContains(t, rr.Body.String(), "Confirmar 1 filas")

	f.do(httptest.NewRequest(http.MethodPost, location+"/confirmar", nil))
	assert.Equal(t, 1, f.creator.calls)
	flash = f.session.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "warning", flash.Kind)
}

func TestImportCommitQueued(t *testing.T) {
	queue := &stubQueue{}
	f := newFixture(t, fakeBackend{}, queue)

	rr := f.do(uploadRequest(t, "carga.csv", uploadCSV))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	location := rr.Header().Get("Location")
	id := strings.TrimPrefix(location, "/indicadores/importar/")

	rr = f.do(httptest.NewRequest(http.MethodPost, location+"/confirmar", nil))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Len(t, queue.payloads, 1)
	assert.Equal(t, jobs.ImportCommitPayload{BatchID: id, Actor: "ana"}, queue.payloads[0])
	assert.Zero(t, f.creator.calls)
	assert.Equal(t, "info", f.session.PopFlash().Kind)

	queue.err = jobs.ErrDuplicateTask
	f.do(httptest.NewRequest(http.MethodPost, location+"/confirmar", nil))
	flash := f.session.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "warning", flash.Kind)
}

func TestImportUploadRejectsBadFile(t *testing.T) {
	f := newFixture(t, fakeBackend{}, nil)
	rr := f.do(uploadRequest(t, "carga.csv", "indicador_codigo,anio\nIND-01,2025\n"))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "sede_id")
}

func TestImportPreviewNotFound(t *testing.T) {
	f := newFixture(t, fakeBackend{}, nil)
	rr := f.get("/indicadores/importar/6f1c6a4e-7c1a-4b54-9a0c-3f1d2e4b5a6c")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestImportTemplateDownload(t *testing.T) {
	f := newFixture(t, fakeBackend{}, nil)
	rr := f.get("/indicadores/plantilla.csv")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "plantilla-resultados.csv")
	assert.True(t, strings.HasPrefix(rr.Body.String(), strings.Join(importer.TemplateColumns, ",")))

	rr = f.get("/indicadores/plantilla.xlsx")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")))
}

func TestDescribeFilters(t *testing.T) {
	assert.Equal(t, "Sin filtros", describeFilters(parseFiltersOrFail(t, ""), indicators.Dataset{}))
	got := describeFilters(parseFiltersOrFail(t, "frequency=mensual&indicator=7&status=cumple&q=ca"), indicators.Dataset{})
	assert.Equal(t, `Frecuencia Mensual · Indicador #7 · Estado Cumple · Búsqueda "ca"`, got)
}

func parseFiltersOrFail(t *testing.T, query string) ui.DashboardFilters {
	t.Helper()
	filters, err := parseFilters(httptest.NewRequest(http.MethodGet, "/indicadores?"+query, nil))
	require.NoError(t, err)
	return filters
}
