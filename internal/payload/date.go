package payload

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006",
}

// Date is a calendar date sent as "2006-01-02", an RFC3339 timestamp or null.
type Date struct {
	time.Time
	Valid bool
}

// DateOf wraps a time value.
func DateOf(t time.Time) Date {
	return Date{Time: t, Valid: !t.IsZero()}
}

// ParseDate parses the supported layouts; unknown text yields an invalid Date.
func ParseDate(raw string) Date {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Date{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return DateOf(t)
		}
	}
	return Date{}
}

// TimeValue returns the date and whether it is present.
func (d Date) TimeValue() (time.Time, bool) {
	return d.Time, d.Valid
}

// String renders the date as YYYY-MM-DD or an empty string.
func (d Date) String() string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format("2006-01-02")
}

// UnmarshalJSON decodes a date string or null.
func (d *Date) UnmarshalJSON(data []byte) error {
	*d = Date{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return err
	}
	*d = ParseDate(s)
	return nil
}

// MarshalJSON encodes the date as YYYY-MM-DD or null.
func (d Date) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}
