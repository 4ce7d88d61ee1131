// Package importer turns uploaded CSV or XLSX sheets into validated result
// rows, keeps the preview in Redis and posts the accepted rows to the backend.
package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Limits applied to uploads.
const (
	MaxFileSize = 5 << 20
	MaxRows     = 5000
)

// Canonical column keys.
const (
	ColIndicator    = "indicador_codigo"
	ColIndicatorID  = "indicador_id"
	ColHeadquarters = "sede_id"
	ColYear         = "anio"
	ColMonth        = "mes"
	ColQuarter      = "trimestre"
	ColSemester     = "semestre"
	ColNumerator    = "numerador"
	ColDenominator  = "denominador"
	ColValue        = "valor"
)

// TemplateColumns is the header of the downloadable template.
var TemplateColumns = []string{ColIndicator, ColHeadquarters, ColYear, ColMonth, ColQuarter, ColSemester, ColNumerator, ColDenominator}

var columnAliases = map[string]string{
	"indicador_codigo": ColIndicator,
	"codigo_indicador": ColIndicator,
	"indicador":        ColIndicator,
	"codigo":           ColIndicator,
	"indicator":        ColIndicator,
	"indicador_id":     ColIndicatorID,
	"indicator_id":     ColIndicatorID,
	"sede_id":          ColHeadquarters,
	"sede":             ColHeadquarters,
	"headquarters":     ColHeadquarters,
	"anio":             ColYear,
	"ano":              ColYear,
	"year":             ColYear,
	"mes":              ColMonth,
	"month":            ColMonth,
	"trimestre":        ColQuarter,
	"quarter":          ColQuarter,
	"semestre":         ColSemester,
	"semester":         ColSemester,
	"numerador":        ColNumerator,
	"numerator":        ColNumerator,
	"denominador":      ColDenominator,
	"denominator":      ColDenominator,
	"valor":            ColValue,
	"valor_calculado":  ColValue,
}

// Parse errors. Their text is shown to the user as is.
var (
	ErrEmptyFile      = errors.New("el archivo no tiene filas de datos")
	ErrFileTooLarge   = errors.New("el archivo supera 5 MB")
	ErrTooManyRows    = fmt.Errorf("el archivo supera %d filas", MaxRows)
	ErrMissingColumns = errors.New("faltan columnas")
	ErrInvalidFile    = errors.New("no se pudo leer el archivo")
)

// Sheet is the parsed upload: canonical column positions plus data records.
// Line numbers are 1-based and count the header.
type Sheet struct {
	Columns map[string]int
	Records []Record
}

// Record is one data line of the upload.
type Record struct {
	Line   int
	Fields []string
}

// Get returns the trimmed cell for a canonical column, or "".
func (s Sheet) Get(rec Record, col string) string {
	idx, ok := s.Columns[col]
	if !ok || idx >= len(rec.Fields) {
		return ""
	}
	return strings.TrimSpace(rec.Fields[idx])
}

// Parse reads a CSV or XLSX upload. XLSX is detected from the extension or
// the zip signature; anything else is read as delimited text.
func Parse(r io.Reader, filename string) (Sheet, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return Sheet{}, err
	}
	if len(data) > MaxFileSize {
		return Sheet{}, ErrFileTooLarge
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Sheet{}, ErrEmptyFile
	}
	var records []Record
	if strings.EqualFold(filepath.Ext(filename), ".xlsx") || bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		records, err = readXLSX(data)
	} else {
		records, err = readCSV(data)
	}
	if err != nil {
		return Sheet{}, err
	}
	return buildSheet(records)
}

// readCSV keeps the physical line of each record; the csv reader skips
// blank lines.
func readCSV(data []byte) ([]Record, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = detectDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	var records []Record
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
		}
		line, _ := reader.FieldPos(0)
		records = append(records, Record{Line: line, Fields: fields})
	}
}

// detectDelimiter picks the most frequent separator on the header line.
func detectDelimiter(data []byte) rune {
	line, _ := bufio.NewReader(bytes.NewReader(data)).ReadString('\n')
	best, count := ',', strings.Count(line, ",")
	for _, candidate := range []rune{';', '\t'} {
		if n := strings.Count(line, string(candidate)); n > count {
			best, count = candidate, n
		}
	}
	return best
}

func readXLSX(data []byte) ([]Record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	sheet := sheets[0]
	if slices.Contains(sheets, SheetData) {
		sheet = SheetData
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		records = append(records, Record{Line: i + 1, Fields: row})
	}
	return records, nil
}

func buildSheet(lines []Record) (Sheet, error) {
	header := -1
	for i, rec := range lines {
		if !blank(rec.Fields) {
			header = i
			break
		}
	}
	if header < 0 {
		return Sheet{}, ErrEmptyFile
	}

	sheet := Sheet{Columns: map[string]int{}}
	for idx, name := range lines[header].Fields {
		if col, ok := columnAliases[NormalizeKey(name)]; ok {
			if _, dup := sheet.Columns[col]; !dup {
				sheet.Columns[col] = idx
			}
		}
	}
	var missing []string
	if _, ok := sheet.Columns[ColIndicator]; !ok {
		if _, ok := sheet.Columns[ColIndicatorID]; !ok {
			missing = append(missing, ColIndicator)
		}
	}
	for _, col := range []string{ColHeadquarters, ColYear, ColNumerator, ColDenominator} {
		if _, ok := sheet.Columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return Sheet{}, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	for _, rec := range lines[header+1:] {
		if blank(rec.Fields) {
			continue
		}
		if len(sheet.Records) == MaxRows {
			return Sheet{}, ErrTooManyRows
		}
		sheet.Records = append(sheet.Records, rec)
	}
	if len(sheet.Records) == 0 {
		return Sheet{}, ErrEmptyFile
	}
	return sheet, nil
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// NormalizeKey lowercases, strips accents and joins words with underscores so
// "Año", "ano" and " AÑO " compare equal.
func NormalizeKey(raw string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	text, _, err := transform.String(stripMarks, strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		text = strings.ToLower(strings.TrimSpace(raw))
	}
	return strings.Join(strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_' || r == '.'
	}), "_")
}

// IsParseError reports whether err came from reading the upload rather than
// from infrastructure.
func IsParseError(err error) bool {
	for _, target := range []error{ErrEmptyFile, ErrFileTooLarge, ErrTooManyRows, ErrMissingColumns, ErrInvalidFile} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
