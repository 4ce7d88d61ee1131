// Package svg renders the server-side charts of the indicators dashboard as
// inline SVG, so pages work without client-side charting.
package svg

import (
	"fmt"
	"html/template"
	"math"
	"strings"
)

// LineOpts customises the line chart.
type LineOpts struct {
	Title       string
	Description string
	StrokeColor string
	TargetColor string
	TargetLabel string
	ShowDots    bool
	Unit        string
	Padding     float64
	TickCount   int
}

// BarOpts customises the value-versus-target bar chart.
type BarOpts struct {
	Title       string
	Description string
	ValueLabel  string
	TargetLabel string
	Unit        string
	Padding     float64
	TickCount   int
	// Colors, when set, colors each value bar individually (for example by
	// compliance); it must match the labels length.
	Colors []string
}

// Slice is one segment of a donut chart.
type Slice struct {
	Label string
	Value float64
	Color string
}

// DonutOpts customises the donut chart.
type DonutOpts struct {
	Title       string
	Description string
	CenterText  string
	CenterSub   string
}

// Chart defaults.
const (
	DefaultWidth   = 720
	DefaultHeight  = 260
	DefaultPadding = 32.0
	DefaultTicks   = 5
	DonutSize      = 220
)

// Palette shared with the badge colors of the templates.
const (
	ColorPrimary = "#2563eb"
	ColorSuccess = "#16a34a"
	ColorDanger  = "#dc2626"
	ColorMuted   = "#94a3b8"
	ColorTarget  = "#f59e0b"
	colorAxis    = "#475569"
	colorGrid    = "#cbd5e1"
)

// frame holds the plot geometry shared by the cartesian charts.
type frame struct {
	width, height int
	padding       float64
	plotW, plotH  float64
	min, max      float64
	ticks         int
}

func newFrame(width, height int, padding float64, ticks int, values ...[]float64) (frame, error) {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if padding <= 0 {
		padding = DefaultPadding
	}
	if ticks <= 0 {
		ticks = DefaultTicks
	}
	f := frame{width: width, height: height, padding: padding, ticks: ticks}
	f.plotW = float64(width) - 2*padding
	f.plotH = float64(height) - 2*padding
	if f.plotW <= 0 || f.plotH <= 0 {
		return frame{}, fmt.Errorf("svg: viewport too small")
	}
	f.min, f.max = 0, 0
	for _, series := range values {
		for _, v := range series {
			if !finite(v) {
				continue
			}
			f.min = math.Min(f.min, v)
			f.max = math.Max(f.max, v)
		}
	}
	if almostEqual(f.max, f.min) {
		f.max = f.min + 1
	}
	// Headroom so the tallest bar does not touch the frame.
	f.max += (f.max - f.min) * 0.05
	return f, nil
}

func (f frame) y(v float64) float64 {
	return f.padding + f.plotH - (v-f.min)/(f.max-f.min)*f.plotH
}

func (f frame) bottom() float64 {
	return f.padding + f.plotH
}

func (f frame) open(b *strings.Builder, kind, title, desc string) {
	titleID := makeID(title, kind+"-title")
	descID := makeID(title, kind+"-desc")
	fmt.Fprintf(b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" role="img" aria-labelledby="%s %s">`, f.width, f.height, titleID, descID)
	fmt.Fprintf(b, `<title id="%s">%s</title>`, titleID, template.HTMLEscapeString(fallback(title, "Gráfico")))
	fmt.Fprintf(b, `<desc id="%s">%s</desc>`, descID, template.HTMLEscapeString(fallback(desc, "Datos de indicadores")))
}

func (f frame) grid(b *strings.Builder, unit string) {
	for i := 0; i <= f.ticks; i++ {
		ratio := float64(i) / float64(f.ticks)
		value := f.min + (f.max-f.min)*ratio
		y := f.y(value)
		fmt.Fprintf(b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="%s" stroke-width="0.5" stroke-dasharray="2,4" aria-hidden="true"></line>`, f.padding, y, f.padding+f.plotW, y, colorGrid)
		fmt.Fprintf(b, `<text x="%.2f" y="%.2f" fill="%s" font-size="10" text-anchor="end">%s</text>`, f.padding-6, y+4, colorAxis, template.HTMLEscapeString(formatTick(value)+unit))
	}
	zero := f.y(0)
	fmt.Fprintf(b, `<g stroke="%s" aria-label="Ejes">`, colorAxis)
	fmt.Fprintf(b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke-width="1"></line>`, f.padding, f.padding, f.padding, f.bottom())
	fmt.Fprintf(b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke-width="1"></line>`, f.padding, zero, f.padding+f.plotW, zero)
	b.WriteString("</g>")
}

func (f frame) xLabel(b *strings.Builder, x float64, label string) {
	fmt.Fprintf(b, `<text x="%.2f" y="%.2f" fill="%s" font-size="10" text-anchor="middle">%s</text>`, x, f.bottom()+14, colorAxis, template.HTMLEscapeString(label))
}

func legend(b *strings.Builder, x, y float64, color, label string, dashed bool) float64 {
	if dashed {
		fmt.Fprintf(b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="%s" stroke-width="2" stroke-dasharray="4,3"></line>`, x, y-3, x+12, y-3, color)
	} else {
		fmt.Fprintf(b, `<rect x="%.2f" y="%.2f" width="10" height="10" fill="%s"></rect>`, x, y-8, color)
	}
	fmt.Fprintf(b, `<text x="%.2f" y="%.2f" fill="%s" font-size="10" text-anchor="start">%s</text>`, x+16, y, colorAxis, template.HTMLEscapeString(label))
	return x + 24 + float64(len([]rune(label)))*6
}

func fallback(value, defaultValue string) string {
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	return value
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func makeID(base, suffix string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, strings.ToLower(strings.TrimSpace(base)))
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" {
		cleaned = "chart"
	}
	return cleaned + "-" + suffix
}

func formatTick(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1_000_000:
		return fmt.Sprintf("%.1fM", v/1_000_000)
	case abs >= 10_000:
		return fmt.Sprintf("%.1fk", v/1_000)
	case almostEqual(v, math.Round(v)):
		return fmt.Sprintf("%.0f", v)
	case abs >= 10:
		return fmt.Sprintf("%.1f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}
