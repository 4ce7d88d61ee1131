package indicators

import (
	"strings"

	"github.com/habilita/habilita/internal/payload"
)

// Placeholders used when a display field cannot be resolved.
const (
	UnknownIndicator    = "Sin nombre"
	UnknownHeadquarters = "Sin sede"
)

// Indicator is a KPI definition.
type Indicator struct {
	ID                     int64          `json:"id"`
	Name                   string         `json:"name"`
	Code                   string         `json:"code"`
	MeasurementUnit        string         `json:"measurementUnit"`
	MeasurementFrequency   string         `json:"measurementFrequency"`
	Target                 payload.Number `json:"target"`
	Trend                  string         `json:"trend"`
	CalculationMethod      string         `json:"calculationMethod"`
	NumeratorResponsible   string         `json:"numeratorResponsible"`
	DenominatorResponsible string         `json:"denominatorResponsible"`
}

// IsPercentage reports whether values are expressed as a percentage.
func (i Indicator) IsPercentage() bool {
	return isPercentUnit(i.MeasurementUnit)
}

// Headquarters is a site where indicators are measured.
type Headquarters struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	City    string `json:"city,omitempty"`
	Address string `json:"address,omitempty"`
}

// RawResult is a measurement as returned by the backend. Indicator and
// Headquarters may arrive as a bare id or embedded. The flat display fields are
// populated by the "detailed" endpoint.
type RawResult struct {
	ID              int64                     `json:"id"`
	Indicator       payload.Ref[Indicator]    `json:"indicator"`
	Headquarters    payload.Ref[Headquarters] `json:"headquarters"`
	Numerator       payload.Number            `json:"numerator"`
	Denominator     payload.Number            `json:"denominator"`
	CalculatedValue payload.Number            `json:"calculatedValue"`
	Year            int                       `json:"year"`
	Month           int                       `json:"month"`
	Quarter         int                       `json:"quarter"`
	Semester        int                       `json:"semester"`
	CreatedAt       payload.Date              `json:"creationDate"`

	IndicatorName        string         `json:"indicatorName"`
	IndicatorCode        string         `json:"indicatorCode"`
	HeadquarterName      string         `json:"headquarterName"`
	MeasurementUnit      string         `json:"measurementUnit"`
	MeasurementFrequency string         `json:"measurementFrequency"`
	Target               payload.Number `json:"target"`
	Trend                string         `json:"trend"`
}

// DetailedResult is a RawResult with every display field resolved and
// compliance evaluated.
type DetailedResult struct {
	ID               int64          `json:"id"`
	IndicatorID      int64          `json:"indicatorId"`
	IndicatorName    string         `json:"indicatorName"`
	IndicatorCode    string         `json:"indicatorCode"`
	MeasurementUnit  string         `json:"measurementUnit"`
	Frequency        Frequency      `json:"measurementFrequency"`
	Trend            Trend          `json:"trend"`
	TrendRecognized  bool           `json:"trendRecognized"`
	HeadquartersID   int64          `json:"headquartersId"`
	HeadquartersName string         `json:"headquarterName"`
	Numerator        payload.Number `json:"numerator"`
	Denominator      payload.Number `json:"denominator"`
	CalculatedValue  payload.Number `json:"calculatedValue"`
	Target           payload.Number `json:"target"`
	Period           Period         `json:"period"`
	PeriodLabel      string         `json:"periodLabel"`
	Compliance       Compliance     `json:"compliance"`
	Diferencia       payload.Number `json:"diferencia"`
}

// Compliant is a template convenience.
func (r DetailedResult) Compliant() bool {
	return r.Compliance.Compliant()
}

// PeriodKey orders results chronologically.
func (r DetailedResult) PeriodKey() int {
	return r.Period.SortKey(r.Frequency)
}

// ResultQuery narrows the results requested from the backend.
type ResultQuery struct {
	Year           int
	IndicatorID    int64
	HeadquartersID int64
}

// ResultInput is the body posted to create a measurement.
type ResultInput struct {
	Indicator    int64    `json:"indicator" validate:"required,gt=0"`
	Headquarters int64    `json:"headquarters" validate:"required,gt=0"`
	Numerator    float64  `json:"numerator" validate:"gte=0"`
	Denominator  float64  `json:"denominator" validate:"gt=0"`
	Year         int      `json:"year" validate:"required,gte=1900,lte=9999"`
	Month        *int     `json:"month,omitempty" validate:"omitempty,gte=1,lte=12"`
	Quarter      *int     `json:"quarter,omitempty" validate:"omitempty,gte=1,lte=4"`
	Semester     *int     `json:"semester,omitempty" validate:"omitempty,gte=1,lte=2"`
	Value        *float64 `json:"calculatedValue,omitempty"`
}

func isPercentUnit(unit string) bool {
	u := strings.ToLower(strings.TrimSpace(unit))
	switch u {
	case "%", "porcentaje", "percentage", "percent", "porcentual":
		return true
	}
	return strings.Contains(u, "%")
}
