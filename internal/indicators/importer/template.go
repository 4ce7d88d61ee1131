package importer

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/habilita/habilita/internal/indicators"
	"github.com/habilita/habilita/internal/indicators/export"
)

// Sheet names of the XLSX template. Uploads read SheetData when present.
const (
	SheetData         = "Resultados"
	SheetIndicators   = "Indicadores"
	SheetHeadquarters = "Sedes"
)

// WriteTemplateCSV writes the header plus one example row built from the
// first indicator and headquarters, when there are any.
func WriteTemplateCSV(w io.Writer, inds []indicators.Indicator, hqs []indicators.Headquarters) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write(TemplateColumns); err != nil {
		return err
	}
	if example := exampleRow(inds, hqs); example != nil {
		if err := writer.Write(example); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTemplateXLSX writes the data sheet plus reference sheets listing the
// indicator codes and headquarters ids the upload must use.
func WriteTemplateXLSX(w io.Writer, inds []indicators.Indicator, hqs []indicators.Headquarters) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetData); err != nil {
		return err
	}
	header, err := export.HeaderStyle(f)
	if err != nil {
		return err
	}
	if err := writeSheet(f, SheetData, TemplateColumns, nil, header); err != nil {
		return err
	}
	if example := exampleRow(inds, hqs); example != nil {
		if err := export.WriteRow(f, SheetData, 2, strings2any(example)); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(SheetIndicators); err != nil {
		return err
	}
	indRows := make([][]any, 0, len(inds))
	for _, ind := range inds {
		trend, _ := indicators.ParseTrend(ind.Trend)
		indRows = append(indRows, []any{ind.Code, ind.Name, indicators.ParseFrequency(ind.MeasurementFrequency).Label(), ind.MeasurementUnit, trend.Label()})
	}
	if err := writeSheet(f, SheetIndicators, []string{"codigo", "nombre", "frecuencia", "unidad", "tendencia"}, indRows, header); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetHeadquarters); err != nil {
		return err
	}
	hqRows := make([][]any, 0, len(hqs))
	for _, hq := range hqs {
		hqRows = append(hqRows, []any{hq.ID, hq.Name, hq.City})
	}
	if err := writeSheet(f, SheetHeadquarters, []string{"sede_id", "nombre", "ciudad"}, hqRows, header); err != nil {
		return err
	}
	return f.Write(w)
}

func writeSheet(f *excelize.File, sheet string, columns []string, rows [][]any, style int) error {
	if err := export.WriteRow(f, sheet, 1, strings2any(columns)); err != nil {
		return err
	}
	last, err := excelize.ColumnNumberToName(len(columns))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last+"1", style); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", last, 18); err != nil {
		return err
	}
	for i, row := range rows {
		if err := export.WriteRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func exampleRow(inds []indicators.Indicator, hqs []indicators.Headquarters) []string {
	if len(inds) == 0 || len(hqs) == 0 {
		return nil
	}
	ind := inds[0]
	row := []string{ind.Code, strconv.FormatInt(hqs[0].ID, 10), "2025", "", "", "", "0", "1"}
	switch indicators.ParseFrequency(ind.MeasurementFrequency) {
	case indicators.FrequencyMonthly:
		row[3] = "1"
	case indicators.FrequencyQuarterly:
		row[4] = "1"
	case indicators.FrequencySemiannual:
		row[5] = "1"
	}
	return row
}

func strings2any(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
