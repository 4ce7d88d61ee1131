package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/habilita/habilita/internal/indicators"
	"github.com/habilita/habilita/internal/payload"
)

// Sheet names of the results workbook.
const (
	SheetResults = "Resultados"
	SheetSummary = "Resumen"
)

// WriteResultsXLSX writes a workbook with the result rows and a per-site
// summary. Numeric cells stay numeric so spreadsheets can aggregate them.
func WriteResultsXLSX(w io.Writer, results []indicators.DetailedResult, summary indicators.Summary) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetResults); err != nil {
		return err
	}
	header, err := HeaderStyle(f)
	if err != nil {
		return err
	}
	if err := WriteRow(f, SheetResults, 1, toAny(ResultColumns)); err != nil {
		return err
	}
	for i, r := range results {
		row := []any{
			r.ID, r.IndicatorName, r.IndicatorCode, r.HeadquartersName,
			r.PeriodLabel, r.Frequency.Label(),
			cellNumber(r.Numerator), cellNumber(r.Denominator), cellNumber(r.CalculatedValue),
			r.MeasurementUnit, cellNumber(r.Target), r.Trend.Label(),
			r.Compliance.Label, cellNumber(r.Diferencia),
		}
		if err := WriteRow(f, SheetResults, i+2, row); err != nil {
			return err
		}
	}
	if err := decorate(f, SheetResults, len(ResultColumns), len(results)+1, header); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetSummary); err != nil {
		return err
	}
	rows := [][]any{
		{"Resultados", summary.Total},
		{"Cumplen", summary.Compliant},
		{"No cumplen", summary.NonCompliant},
		{"Sin datos", summary.Undetermined},
		{"% Cumplimiento", summary.Rate},
		{},
		{"Sede", "Resultados", "Cumplen", "No cumplen", "Sin datos", "% Cumplimiento"},
	}
	for _, g := range summary.ByHeadquarters {
		rows = append(rows, []any{g.Name, g.Total, g.Compliant, g.NonCompliant, g.Undetermined, g.Rate})
	}
	for i, row := range rows {
		if err := WriteRow(f, SheetSummary, i+1, row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(SheetSummary, "A7", "F7", header); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetSummary, "A", "F", 18); err != nil {
		return err
	}
	return f.Write(w)
}

// HeaderStyle registers the bold white-on-blue header style.
func HeaderStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"2563EB"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
}

// WriteRow writes values starting at column A of the given 1-based row.
func WriteRow(f *excelize.File, sheet string, row int, values []any) error {
	if len(values) == 0 {
		return nil
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

// decorate styles the header row, freezes it and adds an autofilter.
func decorate(f *excelize.File, sheet string, cols, rows, style int) error {
	last, err := excelize.ColumnNumberToName(cols)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last+"1", style); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", last, 16); err != nil {
		return err
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	if rows < 2 {
		return nil
	}
	return f.AutoFilter(sheet, fmt.Sprintf("A1:%s%d", last, rows), nil)
}

func cellNumber(n payload.Number) any {
	if v, ok := n.Float64(); ok {
		return v
	}
	return ""
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
