package indicatorshttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/habilita/habilita/internal/indicators"
	"github.com/habilita/habilita/internal/indicators/export"
	"github.com/habilita/habilita/internal/indicators/ui"
)

// loadFiltered loads the dataset and applies the local filters.
func (h *Handler) loadFiltered(ctx context.Context, filters ui.DashboardFilters) (indicators.Dataset, []indicators.DetailedResult, error) {
	ds, err := h.service.Load(ctx, filters.Query())
	if err != nil {
		return indicators.Dataset{}, nil, err
	}
	return ds, filters.Filter().Apply(ds.Results), nil
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	_, results, err := h.loadFiltered(ctx, filters)
	if err != nil {
		h.handleServerError(w, "load results", err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := export.WriteResultsCSV(buf, results); err != nil {
		h.handleServerError(w, "write results csv", err)
		return
	}
	buf.WriteString("\n")
	if err := export.WriteSummaryCSV(buf, indicators.Summarize(results)); err != nil {
		h.handleServerError(w, "write summary csv", err)
		return
	}

	h.attachment(w, "text/csv; charset=utf-8", h.filename("csv"))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logError("stream csv", err)
	}
}

func (h *Handler) handleXLSX(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	_, results, err := h.loadFiltered(ctx, filters)
	if err != nil {
		h.handleServerError(w, "load results", err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteResultsXLSX(&buf, results, indicators.Summarize(results)); err != nil {
		h.handleServerError(w, "write results xlsx", err)
		return
	}
	h.attachment(w, xlsxContentType, h.filename("xlsx"))
	if _, err := buf.WriteTo(w); err != nil {
		h.logError("stream xlsx", err)
	}
}

func (h *Handler) handlePDF(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		h.handleServerError(w, "pdf exporter", errors.New("pdf exporter not configured"))
		return
	}
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

	results := filters.Filter().Apply(data.dataset.Results)
	payload := export.DashboardPayload{
		Title:       "Tablero de indicadores",
		Filters:     describeFilters(filters, data.dataset),
		GeneratedAt: h.now(),
		Summary:     vm.Summary,
		Results:     indicators.RankByGap(results, 0),
	}
	for _, chart := range []template.HTML{vm.ComplianceSVG, vm.HeadquartersSVG, vm.TrendSVG} {
		if chart != "" {
			payload.Charts = append(payload.Charts, chart)
		}
	}
	pdfBytes, err := h.pdf.RenderDashboard(ctx, payload)
	if err != nil {
		h.handleServerError(w, "render pdf", err)
		return
	}

	h.attachment(w, "application/pdf", h.filename("pdf"))
	if _, err := w.Write(pdfBytes); err != nil {
		h.logError("stream pdf", err)
	}
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) attachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
}

func (h *Handler) filename(ext string) string {
	return fmt.Sprintf("indicadores-%s.%s", h.now().Format("2006-01-02"), ext)
}

// describeFilters renders the active filters as one line for the PDF header.
func describeFilters(filters ui.DashboardFilters, ds indicators.Dataset) string {
	var parts []string
	if filters.Year > 0 {
		parts = append(parts, "Año "+strconv.Itoa(filters.Year))
	}
	if filters.Frequency != "" {
		parts = append(parts, "Frecuencia "+filters.Frequency.Label())
	}
	if filters.HeadquartersID > 0 {
		name := "#" + strconv.FormatInt(filters.HeadquartersID, 10)
		for _, hq := range ds.Headquarters {
			if hq.ID == filters.HeadquartersID {
				name = hq.Name
			}
		}
		parts = append(parts, "Sede "+name)
	}
	if filters.IndicatorID > 0 {
		name := "#" + strconv.FormatInt(filters.IndicatorID, 10)
		for _, ind := range ds.Indicators {
			if ind.ID == filters.IndicatorID {
				name = ind.Name
			}
		}
		parts = append(parts, "Indicador "+name)
	}
	if filters.Status != "" {
		for _, opt := range filterOptions(filters, indicators.Dataset{}).Statuses {
			if opt.Selected {
				parts = append(parts, "Estado "+opt.Label)
			}
		}
	}
	if filters.Search != "" {
		parts = append(parts, fmt.Sprintf("Búsqueda %q", filters.Search))
	}
	if len(parts) == 0 {
		return "Sin filtros"
	}
	return strings.Join(parts, " · ")
}

// HandleCSVForTest exposes the CSV handler for tests.
func (h *Handler) HandleCSVForTest(w http.ResponseWriter, r *http.Request) { h.handleCSV(w, r) }

// HandleXLSXForTest exposes the XLSX handler for tests.
func (h *Handler) HandleXLSXForTest(w http.ResponseWriter, r *http.Request) { h.handleXLSX(w, r) }

// HandlePDFForTest exposes the PDF handler for tests.
func (h *Handler) HandlePDFForTest(w http.ResponseWriter, r *http.Request) { h.handlePDF(w, r) }
