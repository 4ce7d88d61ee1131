// Package ui holds the view models rendered by the indicator pages.
package ui

import (
	"html/template"
	"net/url"
	"strconv"

	"github.com/habilita/habilita/internal/datatable"
	"github.com/habilita/habilita/internal/indicators"
	"github.com/habilita/habilita/internal/indicators/importer"
	"github.com/habilita/habilita/internal/indicators/svg"
	"github.com/habilita/habilita/internal/payload"
)

// DashboardFilters represents sanitized query filters shared by the
// dashboard, the results table and the exports.
type DashboardFilters struct {
	Year           int
	Frequency      indicators.Frequency
	HeadquartersID int64
	IndicatorID    int64
	Status         indicators.Status
	Search         string
}

// Filter converts the form values into the domain filter.
func (f DashboardFilters) Filter() indicators.Filter {
	return indicators.Filter{
		Year:           f.Year,
		Frequency:      f.Frequency,
		HeadquartersID: f.HeadquartersID,
		IndicatorID:    f.IndicatorID,
		Status:         f.Status,
		Search:         f.Search,
	}
}

// Query narrows the backend request. Only year, indicator and headquarters
// are understood server side; the rest is applied locally.
func (f DashboardFilters) Query() indicators.ResultQuery {
	return indicators.ResultQuery{Year: f.Year, IndicatorID: f.IndicatorID, HeadquartersID: f.HeadquartersID}
}

// Values encodes the filters for links that must preserve them.
func (f DashboardFilters) Values() url.Values {
	v := url.Values{}
	if f.Year > 0 {
		v.Set("year", strconv.Itoa(f.Year))
	}
	if f.Frequency != "" {
		v.Set("frequency", string(f.Frequency))
	}
	if f.HeadquartersID > 0 {
		v.Set("headquarters", strconv.FormatInt(f.HeadquartersID, 10))
	}
	if f.IndicatorID > 0 {
		v.Set("indicator", strconv.FormatInt(f.IndicatorID, 10))
	}
	if f.Status != "" {
		v.Set("status", string(f.Status))
	}
	if f.Search != "" {
		v.Set("q", f.Search)
	}
	return v
}

// Link appends the encoded filters to path.
func (f DashboardFilters) Link(path string) string {
	if enc := f.Values().Encode(); enc != "" {
		return path + "?" + enc
	}
	return path
}

// Option is one entry of a select box.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// FilterOptions lists the choices of every filter select.
type FilterOptions struct {
	Years        []Option
	Frequencies  []Option
	Headquarters []Option
	Indicators   []Option
	Statuses     []Option
}

// GapRow is one line of the ranked table.
type GapRow struct {
	ID           int64
	Indicator    string
	Code         string
	Headquarters string
	Period       string
	Value        string
	Target       string
	Diferencia   string
	Compliance   indicators.Compliance
}

// DashboardViewModel combines all dashboard data for rendering.
type DashboardViewModel struct {
	Filters         DashboardFilters
	Options         FilterOptions
	Summary         indicators.Summary
	TrendIndicator  string
	ComplianceSVG   template.HTML
	HeadquartersSVG template.HTML
	TrendSVG        template.HTML
	HistorySVG      template.HTML
	TopGaps         []GapRow
	Warnings        []string
}

// ResultsViewModel is the results table page.
type ResultsViewModel struct {
	Filters  DashboardFilters
	Options  FilterOptions
	Table    datatable.View
	Warnings []string
}

// ImportViewModel drives the upload, preview and outcome pages.
type ImportViewModel struct {
	Columns   []string
	MaxRows   int
	Preview   *importer.Preview
	Outcome   *importer.Outcome
	Error     string
	Committed bool
}

// LineRenderer abstracts SVG line chart rendering.
type LineRenderer interface {
	Line(width, height int, series, target []float64, labels []string, opts svg.LineOpts) (template.HTML, error)
}

// BarRenderer abstracts SVG bar chart rendering.
type BarRenderer interface {
	Bars(width, height int, values, targets []float64, labels []string, opts svg.BarOpts) (template.HTML, error)
}

// DonutRenderer abstracts SVG donut chart rendering.
type DonutRenderer interface {
	Donut(size int, slices []svg.Slice, opts svg.DonutOpts) (template.HTML, error)
}

// ToGapRows formats ranked results for the table.
func ToGapRows(results []indicators.DetailedResult) []GapRow {
	rows := make([]GapRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, GapRow{
			ID:           r.ID,
			Indicator:    r.IndicatorName,
			Code:         r.IndicatorCode,
			Headquarters: r.HeadquartersName,
			Period:       r.PeriodLabel,
			Value:        NumberText(r.CalculatedValue, r.MeasurementUnit),
			Target:       NumberText(r.Target, r.MeasurementUnit),
			Diferencia:   NumberText(r.Diferencia, ""),
			Compliance:   r.Compliance,
		})
	}
	return rows
}

// NumberText formats an optional number with its unit, or the empty marker.
func NumberText(n payload.Number, unit string) string {
	v, ok := n.Float64()
	if !ok {
		return datatable.EmptyText
	}
	return indicators.FormatValue(v, unit)
}
