package svg

import (
	"fmt"
	"html/template"
	"strings"
)

// Line renders an indicator time series. target may be nil; NaN entries in
// either series leave a gap.
func Line(width, height int, series, target []float64, labels []string, opts LineOpts) (template.HTML, error) {
	if len(series) == 0 {
		return "", fmt.Errorf("svg: series required")
	}
	if len(series) != len(labels) {
		return "", fmt.Errorf("svg: labels length must match series")
	}
	if target != nil && len(target) != len(series) {
		return "", fmt.Errorf("svg: target length must match series")
	}
	f, err := newFrame(width, height, opts.Padding, opts.TickCount, series, target)
	if err != nil {
		return "", err
	}
	stroke := fallback(opts.StrokeColor, ColorPrimary)
	targetColor := fallback(opts.TargetColor, ColorTarget)

	x := func(i int) float64 {
		if len(series) == 1 {
			return f.padding + f.plotW/2
		}
		return f.padding + float64(i)*f.plotW/float64(len(series)-1)
	}

	var b strings.Builder
	f.open(&b, "line", opts.Title, opts.Description)
	f.grid(&b, opts.Unit)

	if target != nil {
		if d := polyline(target, x, f); d != "" {
			fmt.Fprintf(&b, `<path d="%s" fill="none" stroke="%s" stroke-width="1.5" stroke-dasharray="6,4" aria-label="%s"></path>`, d, targetColor, template.HTMLEscapeString(fallback(opts.TargetLabel, "Meta")))
		}
	}
	if d := polyline(series, x, f); d != "" {
		fmt.Fprintf(&b, `<path d="%s" fill="none" stroke="%s" stroke-width="2" stroke-linejoin="round" stroke-linecap="round"></path>`, d, stroke)
	}
	if opts.ShowDots {
		for i, v := range series {
			if finite(v) {
				fmt.Fprintf(&b, `<circle cx="%.2f" cy="%.2f" r="3" fill="%s"><title>%s: %s</title></circle>`, x(i), f.y(v), stroke, template.HTMLEscapeString(labels[i]), template.HTMLEscapeString(formatTick(v)+opts.Unit))
			}
		}
	}
	for i, label := range labels {
		f.xLabel(&b, x(i), label)
	}
	lx := legend(&b, f.padding, 14, stroke, fallback(opts.Title, "Valor"), false)
	if target != nil {
		legend(&b, lx, 14, targetColor, fallback(opts.TargetLabel, "Meta"), true)
	}
	b.WriteString("</svg>")
	return template.HTML(b.String()), nil
}

// polyline builds the path data, starting a new subpath after every gap.
func polyline(values []float64, x func(int) float64, f frame) string {
	var d strings.Builder
	pen := false
	for i, v := range values {
		if !finite(v) {
			pen = false
			continue
		}
		cmd := "L"
		if !pen {
			cmd = "M"
		}
		if d.Len() > 0 {
			d.WriteByte(' ')
		}
		fmt.Fprintf(&d, "%s%.2f %.2f", cmd, x(i), f.y(v))
		pen = true
	}
	return d.String()
}
