package audit

import (
	"encoding/csv"
	"io"
	"time"
)

// CSVColumns is the header of the activity export.
var CSVColumns = []string{"Fecha", "Usuario", "Acción", "Entidad", "ID", "Detalle"}

// WriteCSV writes rows as CSV, timestamps in RFC 3339.
func WriteCSV(w io.Writer, rows []TimelineRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVColumns); err != nil {
		return err
	}
	for _, row := range rows {
		at := ""
		if !row.At.IsZero() {
			at = row.At.UTC().Format(time.RFC3339)
		}
		if err := writer.Write([]string{at, row.Actor, row.ActionLabel(), row.EntityLabel(), row.EntityID, row.Summary}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
