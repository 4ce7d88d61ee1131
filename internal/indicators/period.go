package indicators

import (
	"fmt"
	"strings"
)

// Frequency is how often an indicator is measured.
type Frequency string

const (
	FrequencyMonthly    Frequency = "monthly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencySemiannual Frequency = "semiannual"
	FrequencyAnnual     Frequency = "annual"
)

var frequencySynonyms = map[string]Frequency{
	"monthly":    FrequencyMonthly,
	"mensual":    FrequencyMonthly,
	"month":      FrequencyMonthly,
	"quarterly":  FrequencyQuarterly,
	"trimestral": FrequencyQuarterly,
	"quarter":    FrequencyQuarterly,
	"semiannual": FrequencySemiannual,
	"semestral":  FrequencySemiannual,
	"biannual":   FrequencySemiannual,
	"annual":     FrequencyAnnual,
	"anual":      FrequencyAnnual,
	"yearly":     FrequencyAnnual,
}

// Frequencies lists the canonical values in display order.
var Frequencies = []Frequency{FrequencyMonthly, FrequencyQuarterly, FrequencySemiannual, FrequencyAnnual}

// ParseFrequency maps free text to a Frequency; unknown text yields "".
func ParseFrequency(raw string) Frequency {
	return frequencySynonyms[strings.ToLower(strings.TrimSpace(raw))]
}

// Label returns the Spanish display text.
func (f Frequency) Label() string {
	switch f {
	case FrequencyMonthly:
		return "Mensual"
	case FrequencyQuarterly:
		return "Trimestral"
	case FrequencySemiannual:
		return "Semestral"
	case FrequencyAnnual:
		return "Anual"
	}
	return "Sin frecuencia"
}

// Period locates a result in time. Only the field matching the indicator
// frequency is meaningful.
type Period struct {
	Year     int `json:"year"`
	Month    int `json:"month,omitempty"`
	Quarter  int `json:"quarter,omitempty"`
	Semester int `json:"semester,omitempty"`
}

// effective picks the frequency from the declared one or, failing that, from
// whichever sub-period field is populated.
func (p Period) effective(f Frequency) Frequency {
	switch f {
	case FrequencyMonthly:
		if validRange(p.Month, 12) {
			return f
		}
	case FrequencyQuarterly:
		if validRange(p.Quarter, 4) {
			return f
		}
	case FrequencySemiannual:
		if validRange(p.Semester, 2) {
			return f
		}
	case FrequencyAnnual:
		return f
	}
	switch {
	case validRange(p.Month, 12):
		return FrequencyMonthly
	case validRange(p.Quarter, 4):
		return FrequencyQuarterly
	case validRange(p.Semester, 2):
		return FrequencySemiannual
	}
	return FrequencyAnnual
}

// Label renders 2024-03, 2024-T1, 2024-S2 or 2024.
func (p Period) Label(f Frequency) string {
	if p.Year <= 0 {
		return "Sin periodo"
	}
	switch p.effective(f) {
	case FrequencyMonthly:
		return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
	case FrequencyQuarterly:
		return fmt.Sprintf("%04d-T%d", p.Year, p.Quarter)
	case FrequencySemiannual:
		return fmt.Sprintf("%04d-S%d", p.Year, p.Semester)
	}
	return fmt.Sprintf("%04d", p.Year)
}

// SortKey orders periods by the last month they cover.
func (p Period) SortKey(f Frequency) int {
	month := 12
	switch p.effective(f) {
	case FrequencyMonthly:
		month = p.Month
	case FrequencyQuarterly:
		month = p.Quarter * 3
	case FrequencySemiannual:
		month = p.Semester * 6
	}
	return p.Year*100 + month
}

// Validate checks the sub-period required by the frequency is present.
func (p Period) Validate(f Frequency) error {
	if p.Year < 1900 || p.Year > 9999 {
		return fmt.Errorf("año inválido: %d", p.Year)
	}
	switch f {
	case FrequencyMonthly:
		if !validRange(p.Month, 12) {
			return fmt.Errorf("mes requerido (1-12) para indicador mensual")
		}
	case FrequencyQuarterly:
		if !validRange(p.Quarter, 4) {
			return fmt.Errorf("trimestre requerido (1-4) para indicador trimestral")
		}
	case FrequencySemiannual:
		if !validRange(p.Semester, 2) {
			return fmt.Errorf("semestre requerido (1-2) para indicador semestral")
		}
	}
	return nil
}

func validRange(v, max int) bool {
	return v >= 1 && v <= max
}
