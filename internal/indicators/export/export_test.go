package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"html/template"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/habilita/habilita/internal/indicators"
	"github.com/habilita/habilita/internal/payload"
)

func sampleResults() []indicators.DetailedResult {
	return []indicators.DetailedResult{
		{
			ID: 1, IndicatorID: 1, IndicatorName: "Caídas", IndicatorCode: "IND-01", HeadquartersID: 10, HeadquartersName: "Sede Norte",
			PeriodLabel: "2025-03", Frequency: indicators.FrequencyMonthly, Trend: indicators.TrendDecreasing,
			Numerator: payload.Float(2), Denominator: payload.Float(100), CalculatedValue: payload.Float(2),
			MeasurementUnit: "%", Target: payload.Float(5), Diferencia: payload.Float(3),
			Compliance: indicators.Evaluate(2, 5, indicators.TrendDecreasing),
		},
		{
			ID: 2, IndicatorID: 2, IndicatorName: "Satisfacción", HeadquartersID: 20, HeadquartersName: "Sede Sur",
			PeriodLabel: "2025-T1", Frequency: indicators.FrequencyQuarterly, Trend: indicators.TrendIncreasing,
			Compliance: indicators.Compliance{Status: indicators.StatusUndetermined, Label: "Sin datos"},
		},
	}
}

func TestWriteResultsCSV(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WriteResultsCSV(buf, sampleResults()))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, ResultColumns, records[0])
	assert.Equal(t, "Caídas", records[1][1])
	assert.Equal(t, "2", records[1][8])
	assert.Equal(t, "Cumple", records[1][12])
	assert.Equal(t, "", records[2][8], "missing values export as empty cells")
}

func TestWriteSummaryCSV(t *testing.T) {
	buf := &bytes.Buffer{}
	summary := indicators.Summarize(sampleResults())
	require.NoError(t, WriteSummaryCSV(buf, summary))
	records, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Sede Norte", records[1][0])
}

func TestWriteResultsXLSX(t *testing.T) {
	results := sampleResults()
	buf := &bytes.Buffer{}
	require.NoError(t, WriteResultsXLSX(buf, results, indicators.Summarize(results)))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{SheetResults, SheetSummary}, f.GetSheetList())
	rows, err := f.GetRows(SheetResults)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Indicador", rows[0][1])
	assert.Equal(t, "Sede Norte", rows[1][3])

	value, err := f.GetCellValue(SheetResults, "I2")
	require.NoError(t, err)
	assert.Equal(t, "2", value)

	total, err := f.GetCellValue(SheetSummary, "B1")
	require.NoError(t, err)
	assert.Equal(t, "2", total)
}

func TestPDFExporterRender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forms/chromium/convert/html", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("files")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "index.html", header.Filename)
		html, _ := io.ReadAll(file)
		assert.Contains(t, string(html), "Sede Norte")
		assert.Contains(t, string(html), "<svg>chart</svg>")
		_, _ = w.Write([]byte("PDF"))
	}))
	defer srv.Close()

	exporter := NewPDFExporter(srv.URL+"/", 0)
	results := sampleResults()
	data, err := exporter.RenderDashboard(context.Background(), DashboardPayload{
		Title:   "Tablero de indicadores",
		Summary: indicators.Summarize(results),
		Results: results,
		Charts:  []template.HTML{"<svg>chart</svg>"},
	})
	require.NoError(t, err)
	assert.Equal(t, "PDF", string(data))
}

func TestPDFExporterErrors(t *testing.T) {
	assert.Nil(t, NewPDFExporter("  ", 0))

	var nilExporter *PDFExporter
	_, err := nilExporter.RenderDashboard(context.Background(), DashboardPayload{})
	require.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chromium down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	_, err = NewPDFExporter(srv.URL, 0).RenderDashboard(context.Background(), DashboardPayload{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "503"))
}
