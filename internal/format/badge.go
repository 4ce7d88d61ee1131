// Package format holds the presentation helpers shared by list and detail
// pages: status badges, expiry arithmetic and field extraction.
package format

import "strings"

// Badge is a display label with a color class.
type Badge struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// NeutralColor is used for codes missing from a catalog.
const NeutralColor = "secondary"

// Catalog maps enumerated status codes to badges.
type Catalog map[string]Badge

// Badge returns the entry for code. Lookups ignore case and surrounding
// blanks; unknown codes echo the raw code with the neutral color.
func (c Catalog) Badge(code string) Badge {
	key := strings.ToUpper(strings.TrimSpace(code))
	if b, ok := c[key]; ok {
		return b
	}
	if key == "" {
		return Badge{Label: "Sin estado", Color: NeutralColor}
	}
	return Badge{Label: code, Color: NeutralColor}
}

// Label is shorthand for Badge(code).Label.
func (c Catalog) Label(code string) string {
	return c.Badge(code).Label
}

// Known reports whether code belongs to the catalog.
func (c Catalog) Known(code string) bool {
	_, ok := c[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// Option is a select-box entry.
type Option struct {
	Value string
	Label string
}

// Options lists the catalog in the given order.
func (c Catalog) Options(order ...string) []Option {
	out := make([]Option, 0, len(order))
	for _, code := range order {
		out = append(out, Option{Value: code, Label: c.Label(code)})
	}
	return out
}
