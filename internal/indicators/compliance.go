package indicators

import (
	"encoding/json"
	"math"
)

// Status is the outcome of comparing a measured value against its target.
type Status string

const (
	StatusCompliant    Status = "compliant"
	StatusNonCompliant Status = "non_compliant"
	StatusUndetermined Status = "undetermined"
)

// ParseStatus accepts the canonical codes plus the Spanish filter values.
func ParseStatus(raw string) (Status, bool) {
	switch raw {
	case string(StatusCompliant), "cumple", "si":
		return StatusCompliant, true
	case string(StatusNonCompliant), "no_cumple", "no":
		return StatusNonCompliant, true
	case string(StatusUndetermined), "sin_datos":
		return StatusUndetermined, true
	}
	return "", false
}

// Compliance is the evaluated status plus its display label.
type Compliance struct {
	Status Status `json:"status"`
	Label  string `json:"label"`
}

// Compliant reports whether the value met the target. Undetermined is false.
func (c Compliance) Compliant() bool {
	return c.Status == StatusCompliant
}

// Color maps the status to a badge color.
func (c Compliance) Color() string {
	switch c.Status {
	case StatusCompliant:
		return "success"
	case StatusNonCompliant:
		return "danger"
	default:
		return "secondary"
	}
}

// MarshalJSON adds the boolean for API consumers.
func (c Compliance) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Status    Status `json:"status"`
		Label     string `json:"label"`
		Compliant bool   `json:"compliant"`
	}{c.Status, c.Label, c.Compliant()})
}

// Evaluate applies the trend rule: decreasing is compliant when
// value <= target, anything else when value >= target. A missing or
// non-finite operand yields StatusUndetermined.
func Evaluate(value, target float64, trend Trend) Compliance {
	if !finite(value) || !finite(target) {
		return Compliance{Status: StatusUndetermined, Label: "Sin datos"}
	}
	var ok bool
	if trend == TrendDecreasing {
		ok = value <= target
	} else {
		ok = value >= target
	}
	if ok {
		return Compliance{Status: StatusCompliant, Label: "Cumple"}
	}
	return Compliance{Status: StatusNonCompliant, Label: "No cumple"}
}

// IsCompliant evaluates free-text trend metadata.
func IsCompliant(value, target float64, trend string) bool {
	t, _ := ParseTrend(trend)
	return Evaluate(value, target, t).Compliant()
}

// Gap is the direction-normalised distance to target: positive means better
// than target. ok is false when either operand is not finite.
func Gap(value, target float64, trend Trend) (gap float64, ok bool) {
	if !finite(value) || !finite(target) {
		return 0, false
	}
	if trend == TrendDecreasing {
		return target - value, true
	}
	return value - target, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
