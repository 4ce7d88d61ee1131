package importer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/habilita/habilita/internal/datatable"
	"github.com/habilita/habilita/internal/indicators"
	"github.com/habilita/habilita/internal/payload"
)

// Row is one validated line of an upload. Input is only meaningful when
// Errors is empty.
type Row struct {
	Line             int                    `json:"line"`
	IndicatorCode    string                 `json:"indicatorCode"`
	IndicatorName    string                 `json:"indicatorName"`
	HeadquartersName string                 `json:"headquartersName"`
	PeriodLabel      string                 `json:"periodLabel"`
	Value            payload.Number         `json:"value"`
	Unit             string                 `json:"unit"`
	Input            indicators.ResultInput `json:"input"`
	Errors           []string               `json:"errors,omitempty"`
}

// Valid reports whether the row can be posted.
func (r Row) Valid() bool {
	return len(r.Errors) == 0
}

// ValueText is the calculated value with its unit, for the preview table.
func (r Row) ValueText() string {
	v, ok := r.Value.Float64()
	if !ok {
		return datatable.EmptyText
	}
	return indicators.FormatValue(v, r.Unit)
}

// Catalog indexes the reference data rows are checked against.
type Catalog struct {
	byCode   map[string]indicators.Indicator
	byID     map[int64]indicators.Indicator
	hqByID   map[int64]indicators.Headquarters
	hqByName map[string]indicators.Headquarters
}

// NewCatalog indexes indicators by code and id, and headquarters by id and
// normalised name.
func NewCatalog(inds []indicators.Indicator, hqs []indicators.Headquarters) Catalog {
	c := Catalog{
		byCode:   make(map[string]indicators.Indicator, len(inds)),
		byID:     make(map[int64]indicators.Indicator, len(inds)),
		hqByID:   make(map[int64]indicators.Headquarters, len(hqs)),
		hqByName: make(map[string]indicators.Headquarters, len(hqs)),
	}
	for _, ind := range inds {
		c.byID[ind.ID] = ind
		if code := NormalizeKey(ind.Code); code != "" {
			c.byCode[code] = ind
		}
	}
	for _, hq := range hqs {
		c.hqByID[hq.ID] = hq
		if name := NormalizeKey(hq.Name); name != "" {
			c.hqByName[name] = hq
		}
	}
	return c
}

func (c Catalog) indicator(code, id string) (indicators.Indicator, string) {
	if code != "" {
		if ind, ok := c.byCode[NormalizeKey(code)]; ok {
			return ind, ""
		}
		if n, err := strconv.ParseInt(code, 10, 64); err == nil {
			if ind, ok := c.byID[n]; ok {
				return ind, ""
			}
		}
		return indicators.Indicator{}, fmt.Sprintf("indicador desconocido: %s", code)
	}
	if id != "" {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			if ind, ok := c.byID[n]; ok {
				return ind, ""
			}
		}
		return indicators.Indicator{}, fmt.Sprintf("indicador desconocido: %s", id)
	}
	return indicators.Indicator{}, "indicador requerido"
}

func (c Catalog) headquarters(raw string) (indicators.Headquarters, string) {
	if raw == "" {
		return indicators.Headquarters{}, "sede requerida"
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if hq, ok := c.hqByID[n]; ok {
			return hq, ""
		}
	} else if hq, ok := c.hqByName[NormalizeKey(raw)]; ok {
		return hq, ""
	}
	return indicators.Headquarters{}, fmt.Sprintf("sede desconocida: %s", raw)
}

var fieldNames = map[string]string{
	"Indicator":    "indicador",
	"Headquarters": "sede",
	"Numerator":    "numerador",
	"Denominator":  "denominador",
	"Year":         "año",
	"Month":        "mes",
	"Quarter":      "trimestre",
	"Semester":     "semestre",
}

// ValidateRows checks every record against the catalog. Rows repeating an
// earlier indicator, headquarters and period are rejected as duplicates.
func ValidateRows(sheet Sheet, catalog Catalog, validate *validator.Validate) []Row {
	if validate == nil {
		validate = validator.New()
	}
	seen := map[string]int{}
	rows := make([]Row, 0, len(sheet.Records))
	for _, rec := range sheet.Records {
		row := validateRecord(sheet, rec, catalog, validate)
		if row.Valid() {
			key := fmt.Sprintf("%d|%d|%s", row.Input.Indicator, row.Input.Headquarters, row.PeriodLabel)
			if first, dup := seen[key]; dup {
				row.Errors = append(row.Errors, fmt.Sprintf("fila duplicada (línea %d)", first))
			} else {
				seen[key] = row.Line
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func validateRecord(sheet Sheet, rec Record, catalog Catalog, validate *validator.Validate) Row {
	row := Row{Line: rec.Line, IndicatorCode: sheet.Get(rec, ColIndicator)}
	fail := func(msg string) { row.Errors = append(row.Errors, msg) }

	ind, msg := catalog.indicator(row.IndicatorCode, sheet.Get(rec, ColIndicatorID))
	if msg != "" {
		fail(msg)
	} else {
		row.IndicatorCode = ind.Code
		row.IndicatorName = ind.Name
		row.Unit = ind.MeasurementUnit
		row.Input.Indicator = ind.ID
	}
	hq, msg := catalog.headquarters(sheet.Get(rec, ColHeadquarters))
	if msg != "" {
		fail(msg)
	} else {
		row.HeadquartersName = hq.Name
		row.Input.Headquarters = hq.ID
	}

	period := indicators.Period{}
	var err error
	if period.Year, err = intCell(sheet.Get(rec, ColYear)); err != nil || period.Year == 0 {
		fail("año requerido")
	}
	if period.Month, err = intCell(sheet.Get(rec, ColMonth)); err != nil {
		fail("mes inválido")
	}
	if period.Quarter, err = intCell(sheet.Get(rec, ColQuarter)); err != nil {
		fail("trimestre inválido")
	}
	if period.Semester, err = intCell(sheet.Get(rec, ColSemester)); err != nil {
		fail("semestre inválido")
	}

	num := payload.ParseNumber(sheet.Get(rec, ColNumerator))
	den := payload.ParseNumber(sheet.Get(rec, ColDenominator))
	if !num.Finite() {
		fail("numerador inválido")
	}
	if !den.Finite() {
		fail("denominador inválido")
	} else if v, _ := den.Float64(); v == 0 {
		fail("el denominador no puede ser cero")
	}
	if !row.Valid() {
		return row
	}

	freq := indicators.ParseFrequency(ind.MeasurementFrequency)
	if err := period.Validate(freq); err != nil {
		fail(err.Error())
		return row
	}
	row.Input.Year = period.Year
	row.PeriodLabel = period.Label(freq)
	switch freq {
	case indicators.FrequencyMonthly:
		row.Input.Month = &period.Month
	case indicators.FrequencyQuarterly:
		row.Input.Quarter = &period.Quarter
	case indicators.FrequencySemiannual:
		row.Input.Semester = &period.Semester
	case indicators.FrequencyAnnual:
	default:
		row.Input.Month = nonZero(period.Month)
		row.Input.Quarter = nonZero(period.Quarter)
		row.Input.Semester = nonZero(period.Semester)
	}
	row.Input.Numerator, _ = num.Float64()
	row.Input.Denominator, _ = den.Float64()

	row.Value = indicators.CalculatedValue(payload.ParseNumber(sheet.Get(rec, ColValue)), num, den, ind.IsPercentage())
	if v, ok := row.Value.Float64(); ok {
		row.Input.Value = &v
	}

	if err := validate.Struct(row.Input); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			fail(err.Error())
			return row
		}
		for _, fe := range verrs {
			name := fieldNames[fe.Field()]
			if name == "" {
				name = strings.ToLower(fe.Field())
			}
			fail(fmt.Sprintf("%s: valor fuera de rango", name))
		}
	}
	return row
}

// intCell parses an optional integer cell. Spreadsheets often store whole
// numbers as "3.0"; those are accepted.
func intCell(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("not an integer: %q", raw)
	}
	return int(f), nil
}

func nonZero(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
