package payload

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number is a decimal the backend may send as a JSON number, a string
// ("85.5", "85,5") or null.
type Number struct {
	Value float64
	Valid bool
}

// Float wraps a known value.
func Float(v float64) Number {
	return Number{Value: v, Valid: true}
}

// ParseNumber converts free text into a Number; unparseable input is invalid.
func ParseNumber(raw string) Number {
	text := strings.TrimSpace(raw)
	text = strings.TrimSuffix(text, "%")
	text = strings.TrimSpace(text)
	if text == "" {
		return Number{}
	}
	if strings.Contains(text, ",") && !strings.Contains(text, ".") {
		text = strings.ReplaceAll(text, ",", ".")
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Number{}
	}
	return Float(v)
}

// Float64 returns the value and whether it is usable for arithmetic.
func (n Number) Float64() (float64, bool) {
	if !n.Finite() {
		return 0, false
	}
	return n.Value, true
}

// Finite reports whether the number is present and neither NaN nor infinite.
func (n Number) Finite() bool {
	return n.Valid && !math.IsNaN(n.Value) && !math.IsInf(n.Value, 0)
}

// OrNaN returns the value or NaN when absent.
func (n Number) OrNaN() float64 {
	if !n.Valid {
		return math.NaN()
	}
	return n.Value
}

// UnmarshalJSON tolerates numbers, numeric strings and null.
func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*n = ParseNumber(s)
		return nil
	}
	var v float64
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return err
	}
	*n = Float(v)
	return nil
}

// MarshalJSON writes null for absent or non-finite values.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Finite() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(n.Value, 'f', -1, 64)), nil
}
