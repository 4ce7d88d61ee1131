// Package indicatorshttp serves the indicators dashboard, the results table,
// exports and the results import flow.
package indicatorshttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/habilita/habilita/internal/datatable"
	"github.com/habilita/habilita/internal/format"
	"github.com/habilita/habilita/internal/indicators"
	"github.com/habilita/habilita/internal/indicators/export"
	"github.com/habilita/habilita/internal/indicators/importer"
	"github.com/habilita/habilita/internal/indicators/svg"
	"github.com/habilita/habilita/internal/indicators/ui"
	"github.com/habilita/habilita/internal/platform/httpx"
	"github.com/habilita/habilita/internal/shared"
	"github.com/habilita/habilita/internal/snapshots"
	"github.com/habilita/habilita/internal/view"
	"github.com/habilita/habilita/jobs"
)

const (
	requestTimeout = 20 * time.Second
	topGapLimit    = 10
	historyLimit   = 30
)

// ResultsService loads enriched results with their catalogs.
type ResultsService interface {
	Load(ctx context.Context, q indicators.ResultQuery) (indicators.Dataset, error)
}

// ImportService previews and commits uploads.
type ImportService interface {
	Preview(ctx context.Context, filename string, r io.Reader, actor string) (importer.Preview, error)
	Load(ctx context.Context, id string) (importer.Preview, error)
	Outcome(ctx context.Context, id string) (importer.Outcome, error)
	Commit(ctx context.Context, id, actor string) (importer.Outcome, error)
	Template(ctx context.Context, w io.Writer, xlsx bool) error
}

// ImportQueue hands commits to the worker. Without one, commits run inline.
type ImportQueue interface {
	EnqueueImportCommit(ctx context.Context, payload jobs.ImportCommitPayload) (*asynq.TaskInfo, error)
}

// HistoryService reads stored compliance snapshots.
type HistoryService interface {
	History(ctx context.Context, year, limit int) ([]snapshots.Snapshot, error)
}

// PDFService renders dashboard content to PDF bytes.
type PDFService interface {
	RenderDashboard(ctx context.Context, payload export.DashboardPayload) ([]byte, error)
}

// Handler coordinates HTTP requests for the indicator pages.
type Handler struct {
	logger    *slog.Logger
	service   ResultsService
	templates *view.Engine
	csrf      *shared.CSRFManager
	line      ui.LineRenderer
	bar       ui.BarRenderer
	donut     ui.DonutRenderer
	pdf       PDFService
	importer  ImportService
	queue     ImportQueue
	history   HistoryService
	csvPool   sync.Pool
	now       func() time.Time
}

// Options carries the optional collaborators. Nil fields disable the
// matching feature: no PDF export, no import, inline commits, no history.
type Options struct {
	PDF      PDFService
	Importer ImportService
	Queue    ImportQueue
	History  HistoryService
}

// NewHandler constructs the indicators HTTP handler.
func NewHandler(logger *slog.Logger, service ResultsService, templates *view.Engine, csrf *shared.CSRFManager, line ui.LineRenderer, bar ui.BarRenderer, donut ui.DonutRenderer, opts Options) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		line:      line,
		bar:       bar,
		donut:     donut,
		pdf:       opts.PDF,
		importer:  opts.Importer,
		queue:     opts.Queue,
		history:   opts.History,
		now:       time.Now,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	data, err := h.loadDashboardData(ctx, filters)
	if err != nil {
		h.handleServerError(w, "load dashboard", err)
		return
	}

	vm, err := h.buildViewModel(filters, data)
	if err != nil {
		h.handleServerError(w, "render charts", err)
		return
	}
	h.render(w, r, "Indicadores", "pages/indicators/dashboard.html", vm)
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	ds, err := h.service.Load(ctx, filters.Query())
	if err != nil {
		h.handleServerError(w, "load results", err)
		return
	}

	table := resultsTable()
	state := datatable.ParseState(r.URL.Query(), datatable.DefaultPageSize)
	page, err := table.Apply(ctx, ds.Results, state, filters.Filter().Predicates()...)
	if err != nil {
		h.handleServerError(w, "paginate results", err)
		return
	}
	vm := ui.ResultsViewModel{
		Filters:  filters,
		Options:  filterOptions(filters, ds),
		Table:    datatable.Render(table, page, state, r.URL.Path, filters.Values()),
		Warnings: ds.Warnings,
	}
	h.render(w, r, "Resultados de indicadores", "pages/indicators/results.html", vm)
}

func (h *Handler) handleAPIResults(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	ds, err := h.service.Load(ctx, filters.Query())
	if err != nil {
		h.logError("api results", err)
		httpx.RespondError(w, err)
		return
	}
	results := filters.Filter().Apply(ds.Results)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"results":  results,
		"summary":  indicators.Summarize(results),
		"warnings": ds.Warnings,
	})
}

type dashboardData struct {
	dataset indicators.Dataset
	history []snapshots.Snapshot
}

func (h *Handler) loadDashboardData(ctx context.Context, filters ui.DashboardFilters) (dashboardData, error) {
	var data dashboardData

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ds, err := h.service.Load(gctx, filters.Query())
		if err != nil {
			return err
		}
		data.dataset = ds
		return nil
	})
	if h.history != nil {
		g.Go(func() error {
			history, err := h.history.History(gctx, filters.Year, historyLimit)
			if err != nil {
				h.logger.Warn("load compliance history", slog.Any("error", err))
				return nil
			}
			data.history = history
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return dashboardData{}, err
	}
	return data, nil
}

func (h *Handler) buildViewModel(filters ui.DashboardFilters, data dashboardData) (ui.DashboardViewModel, error) {
	if h.line == nil || h.bar == nil || h.donut == nil {
		return ui.DashboardViewModel{}, fmt.Errorf("svg renderer missing")
	}
	results := filters.Filter().Apply(data.dataset.Results)
	summary := indicators.Summarize(results)
	vm := ui.DashboardViewModel{
		Filters:  filters,
		Options:  filterOptions(filters, data.dataset),
		Summary:  summary,
		TopGaps:  ui.ToGapRows(indicators.RankByGap(results, topGapLimit)),
		Warnings: data.dataset.Warnings,
	}

	donut, err := h.donut.Donut(svg.DonutSize, []svg.Slice{
		{Label: "Cumple", Value: float64(summary.Compliant), Color: svg.ColorSuccess},
		{Label: "No cumple", Value: float64(summary.NonCompliant), Color: svg.ColorDanger},
		{Label: "Sin datos", Value: float64(summary.Undetermined), Color: svg.ColorMuted},
	}, svg.DonutOpts{
		Title:       "Cumplimiento",
		Description: "Distribución de resultados por estado de cumplimiento",
		CenterText:  indicators.FormatValue(summary.Rate, "%"),
		CenterSub:   "cumplimiento",
	})
	if err != nil {
		return ui.DashboardViewModel{}, err
	}
	vm.ComplianceSVG = donut

	if len(summary.ByHeadquarters) > 0 {
		labels := make([]string, 0, len(summary.ByHeadquarters))
		values := make([]float64, 0, len(summary.ByHeadquarters))
		targets := make([]float64, 0, len(summary.ByHeadquarters))
		colors := make([]string, 0, len(summary.ByHeadquarters))
		for _, g := range summary.ByHeadquarters {
			labels = append(labels, g.Name)
			values = append(values, g.AvgValue)
			targets = append(targets, g.AvgTarget)
			colors = append(colors, groupColor(g))
		}
		bars, err := h.bar.Bars(svg.DefaultWidth, svg.DefaultHeight, values, targets, labels, svg.BarOpts{
			Title:       "Valor frente a meta por sede",
			Description: "Promedio del valor calculado y de la meta en cada sede",
			Colors:      colors,
		})
		if err != nil {
			return ui.DashboardViewModel{}, err
		}
		vm.HeadquartersSVG = bars
	}

	if id, name := trendIndicator(filters, summary); id > 0 {
		points := indicators.Series(results, id)
		if len(points) > 0 {
			labels := make([]string, 0, len(points))
			values := make([]float64, 0, len(points))
			targets := make([]float64, 0, len(points))
			for _, p := range points {
				labels = append(labels, p.Period)
				values = append(values, p.Value)
				targets = append(targets, p.Target)
			}
			line, err := h.line.Line(svg.DefaultWidth, svg.DefaultHeight, values, targets, labels, svg.LineOpts{
				Title:       "Evolución de " + name,
				Description: "Valor promedio por periodo frente a la meta",
				TargetLabel: "Meta",
				ShowDots:    true,
			})
			if err != nil {
				return ui.DashboardViewModel{}, err
			}
			vm.TrendIndicator = name
			vm.TrendSVG = line
		}
	}

	if len(data.history) > 0 {
		points := snapshots.Points(data.history)
		labels := make([]string, 0, len(points))
		rates := make([]float64, 0, len(points))
		for _, p := range points {
			labels = append(labels, p.Label)
			rates = append(rates, p.Rate)
		}
		line, err := h.line.Line(svg.DefaultWidth, svg.DefaultHeight, rates, nil, labels, svg.LineOpts{
			Title:       "Histórico de cumplimiento",
			Description: "Porcentaje de cumplimiento registrado cada día",
			StrokeColor: svg.ColorSuccess,
			Unit:        "%",
		})
		if err != nil {
			return ui.DashboardViewModel{}, err
		}
		vm.HistorySVG = line
	}
	return vm, nil
}

// trendIndicator picks the filtered indicator, or the first one with results.
func trendIndicator(filters ui.DashboardFilters, summary indicators.Summary) (int64, string) {
	for _, g := range summary.ByIndicator {
		if filters.IndicatorID == 0 || g.ID == filters.IndicatorID {
			return g.ID, g.Name
		}
	}
	return 0, ""
}

func groupColor(g indicators.GroupStat) string {
	switch {
	case g.Compliant+g.NonCompliant == 0:
		return svg.ColorMuted
	case g.NonCompliant == 0:
		return svg.ColorSuccess
	case g.Compliant == 0:
		return svg.ColorDanger
	}
	return svg.ColorPrimary
}

func resultsTable() datatable.Table[indicators.DetailedResult] {
	return datatable.Table[indicators.DetailedResult]{Columns: []datatable.Column[indicators.DetailedResult]{
		{Key: "indicator", Label: "Indicador", Sortable: true, Value: func(r indicators.DetailedResult) any { return r.IndicatorName }},
		{Key: "code", Label: "Código", Sortable: true, Value: func(r indicators.DetailedResult) any { return r.IndicatorCode }},
		{Key: "headquarters", Label: "Sede", Sortable: true, Value: func(r indicators.DetailedResult) any { return r.HeadquartersName }},
		{Key: "period", Label: "Periodo", Sortable: true,
			Value: func(r indicators.DetailedResult) any { return r.PeriodKey() },
			Cell:  func(r indicators.DetailedResult) datatable.Cell { return datatable.Cell{Text: r.PeriodLabel} }},
		{Key: "frequency", Label: "Frecuencia", Sortable: true, Value: func(r indicators.DetailedResult) any { return r.Frequency.Label() }},
		{Key: "value", Label: "Valor", Sortable: true,
			Value: func(r indicators.DetailedResult) any { return r.CalculatedValue },
			Cell: func(r indicators.DetailedResult) datatable.Cell {
				return datatable.Cell{Text: ui.NumberText(r.CalculatedValue, r.MeasurementUnit)}
			}},
		{Key: "target", Label: "Meta", Sortable: true,
			Value: func(r indicators.DetailedResult) any { return r.Target },
			Cell: func(r indicators.DetailedResult) datatable.Cell {
				return datatable.Cell{Text: ui.NumberText(r.Target, r.MeasurementUnit)}
			}},
		{Key: "trend", Label: "Tendencia", Value: func(r indicators.DetailedResult) any { return r.Trend.Label() }},
		{Key: "compliance", Label: "Cumplimiento", Sortable: true,
			Value: func(r indicators.DetailedResult) any { return r.Compliance.Label },
			Cell: func(r indicators.DetailedResult) datatable.Cell {
				return datatable.Cell{Badge: complianceBadge(r.Compliance)}
			}},
		{Key: "gap", Label: "Diferencia", Sortable: true,
			Value: func(r indicators.DetailedResult) any { return r.Diferencia },
			Cell: func(r indicators.DetailedResult) datatable.Cell {
				return datatable.Cell{Text: ui.NumberText(r.Diferencia, "")}
			}},
	}}
}

func filterOptions(filters ui.DashboardFilters, ds indicators.Dataset) ui.FilterOptions {
	var opts ui.FilterOptions
	years := indicators.Years(ds.Results)
	if filters.Year > 0 && !containsInt(years, filters.Year) {
		years = append([]int{filters.Year}, years...)
	}
	for _, y := range years {
		opts.Years = append(opts.Years, ui.Option{Value: strconv.Itoa(y), Label: strconv.Itoa(y), Selected: y == filters.Year})
	}
	for _, f := range indicators.Frequencies {
		opts.Frequencies = append(opts.Frequencies, ui.Option{Value: string(f), Label: f.Label(), Selected: f == filters.Frequency})
	}
	for _, hq := range ds.Headquarters {
		opts.Headquarters = append(opts.Headquarters, ui.Option{Value: strconv.FormatInt(hq.ID, 10), Label: hq.Name, Selected: hq.ID == filters.HeadquartersID})
	}
	for _, ind := range ds.Indicators {
		label := ind.Name
		if ind.Code != "" {
			label = ind.Code + " · " + ind.Name
		}
		opts.Indicators = append(opts.Indicators, ui.Option{Value: strconv.FormatInt(ind.ID, 10), Label: label, Selected: ind.ID == filters.IndicatorID})
	}
	for _, s := range []struct {
		status indicators.Status
		label  string
	}{
		{indicators.StatusCompliant, "Cumple"},
		{indicators.StatusNonCompliant, "No cumple"},
		{indicators.StatusUndetermined, "Sin datos"},
	} {
		opts.Statuses = append(opts.Statuses, ui.Option{Value: string(s.status), Label: s.label, Selected: s.status == filters.Status})
	}
	return opts
}

func complianceBadge(c indicators.Compliance) *format.Badge {
	return &format.Badge{Label: c.Label, Color: c.Color()}
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// parseFilters reads the dashboard filters. Empty values mean no filter.
func parseFilters(r *http.Request) (ui.DashboardFilters, error) {
	q := r.URL.Query()
	var filters ui.DashboardFilters

	if raw := strings.TrimSpace(q.Get("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year < 1900 || year > 9999 {
			return ui.DashboardFilters{}, validationError{field: "year"}
		}
		filters.Year = year
	}
	if raw := strings.TrimSpace(q.Get("frequency")); raw != "" {
		freq := indicators.ParseFrequency(raw)
		if freq == "" {
			return ui.DashboardFilters{}, validationError{field: "frequency"}
		}
		filters.Frequency = freq
	}
	var err error
	if filters.HeadquartersID, err = optionalID(q.Get("headquarters")); err != nil {
		return ui.DashboardFilters{}, validationError{field: "headquarters"}
	}
	if filters.IndicatorID, err = optionalID(q.Get("indicator")); err != nil {
		return ui.DashboardFilters{}, validationError{field: "indicator"}
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, ok := indicators.ParseStatus(strings.ToLower(raw))
		if !ok {
			return ui.DashboardFilters{}, validationError{field: "status"}
		}
		filters.Status = status
	}
	filters.Search = strings.TrimSpace(q.Get("q"))
	return filters, nil
}

func optionalID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, title, name string, data any) {
	h.renderStatus(w, r, http.StatusOK, title, name, data)
}

func (h *Handler) renderStatus(w http.ResponseWriter, r *http.Request, status int, title, name string, data any) {
	sess := shared.SessionFromContext(r.Context())
	var flash *shared.FlashMessage
	csrfToken, user := "", ""
	if sess != nil {
		flash = sess.PopFlash()
		user = sess.User()
		if h.csrf != nil {
			csrfToken, _ = h.csrf.EnsureToken(r.Context(), sess)
		}
	}
	viewData := view.TemplateData{
		Title:       title,
		Flash:       flash,
		CSRFToken:   csrfToken,
		CurrentPath: r.URL.Path,
		User:        user,
		Data:        data,
	}
	var buf bytes.Buffer
	if err := h.templates.Execute(&buf, name, viewData); err != nil {
		h.handleServerError(w, "render template", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		h.logError("write page", err)
	}
}

func (h *Handler) handleFilterError(w http.ResponseWriter, err error) {
	var vErr validationError
	if errors.As(err, &vErr) {
		http.Error(w, "Parámetro inválido: "+vErr.field, http.StatusBadRequest)
		return
	}
	h.handleServerError(w, "parse filters", err)
}

func (h *Handler) handleServerError(w http.ResponseWriter, context string, err error) {
	h.logError(context, err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) logError(context string, err error) {
	if h.logger != nil {
		h.logger.Error(context, slog.Any("error", err))
	}
}

func actor(r *http.Request) string {
	return shared.ActorFromContext(r.Context())
}

type validationError struct {
	field string
}

func (v validationError) Error() string {
	return fmt.Sprintf("invalid %s", v.field)
}

// HandleDashboardForTest exposes the dashboard handler for tests.
func (h *Handler) HandleDashboardForTest(w http.ResponseWriter, r *http.Request) {
	h.handleDashboard(w, r)
}

// HandleResultsForTest exposes the results table handler for tests.
func (h *Handler) HandleResultsForTest(w http.ResponseWriter, r *http.Request) { h.handleResults(w, r) }
