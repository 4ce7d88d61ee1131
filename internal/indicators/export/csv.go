package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/habilita/habilita/internal/indicators"
	"github.com/habilita/habilita/internal/payload"
)

// ResultColumns is the header shared by the CSV and XLSX result exports.
var ResultColumns = []string{
	"ID", "Indicador", "Código", "Sede", "Periodo", "Frecuencia",
	"Numerador", "Denominador", "Valor", "Unidad", "Meta", "Tendencia",
	"Cumplimiento", "Diferencia",
}

// WriteResultsCSV serialises enriched results in display order.
func WriteResultsCSV(w io.Writer, results []indicators.DetailedResult) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(ResultColumns); err != nil {
		return err
	}
	for _, r := range results {
		if err := writer.Write(resultRecord(r)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteSummaryCSV emits the per-headquarters compliance table.
func WriteSummaryCSV(w io.Writer, summary indicators.Summary) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Sede", "Resultados", "Cumplen", "No cumplen", "Sin datos", "% Cumplimiento"}); err != nil {
		return err
	}
	for _, g := range summary.ByHeadquarters {
		if err := writer.Write([]string{
			g.Name,
			strconv.Itoa(g.Total),
			strconv.Itoa(g.Compliant),
			strconv.Itoa(g.NonCompliant),
			strconv.Itoa(g.Undetermined),
			formatFloat(g.Rate),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func resultRecord(r indicators.DetailedResult) []string {
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.IndicatorName,
		r.IndicatorCode,
		r.HeadquartersName,
		r.PeriodLabel,
		r.Frequency.Label(),
		number(r.Numerator),
		number(r.Denominator),
		number(r.CalculatedValue),
		r.MeasurementUnit,
		number(r.Target),
		r.Trend.Label(),
		r.Compliance.Label,
		number(r.Diferencia),
	}
}

func number(n payload.Number) string {
	v, ok := n.Float64()
	if !ok {
		return ""
	}
	return formatFloat(v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
