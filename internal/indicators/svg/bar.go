package svg

import (
	"fmt"
	"html/template"
	"math"
	"strings"
)

// Bars renders value bars with a target bar beside each, one group per
// label. A NaN value or target skips that bar.
func Bars(width, height int, values, targets []float64, labels []string, opts BarOpts) (template.HTML, error) {
	if len(labels) == 0 {
		return "", fmt.Errorf("svg: labels required")
	}
	if len(values) != len(labels) {
		return "", fmt.Errorf("svg: values length must match labels")
	}
	if targets != nil && len(targets) != len(labels) {
		return "", fmt.Errorf("svg: targets length must match labels")
	}
	if opts.Colors != nil && len(opts.Colors) != len(labels) {
		return "", fmt.Errorf("svg: colors length must match labels")
	}
	f, err := newFrame(width, height, opts.Padding, opts.TickCount, values, targets)
	if err != nil {
		return "", err
	}
	valueLabel := fallback(opts.ValueLabel, "Valor")
	targetLabel := fallback(opts.TargetLabel, "Meta")

	group := f.plotW / float64(len(labels))
	bar := group / 3
	zero := f.y(0)

	var b strings.Builder
	f.open(&b, "bar", opts.Title, opts.Description)
	f.grid(&b, opts.Unit)

	for i, label := range labels {
		left := f.padding + float64(i)*group
		color := ColorPrimary
		if opts.Colors != nil && opts.Colors[i] != "" {
			color = opts.Colors[i]
		}
		if v := values[i]; finite(v) {
			y, h := f.span(v, zero)
			fmt.Fprintf(&b, `<rect x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="%s"><title>%s %s: %s</title></rect>`,
				left+bar*0.3, y, bar, h, color, template.HTMLEscapeString(valueLabel), template.HTMLEscapeString(label), template.HTMLEscapeString(formatTick(v)+opts.Unit))
		}
		if targets != nil && finite(targets[i]) {
			y, h := f.span(targets[i], zero)
			fmt.Fprintf(&b, `<rect x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="%s" fill-opacity="0.6"><title>%s %s: %s</title></rect>`,
				left+bar*1.4, y, bar, h, ColorTarget, template.HTMLEscapeString(targetLabel), template.HTMLEscapeString(label), template.HTMLEscapeString(formatTick(targets[i])+opts.Unit))
		}
		f.xLabel(&b, left+group/2, label)
	}

	lx := legend(&b, f.padding, 14, ColorPrimary, valueLabel, false)
	if targets != nil {
		legend(&b, lx, 14, ColorTarget, targetLabel, false)
	}
	b.WriteString("</svg>")
	return template.HTML(b.String()), nil
}

// span returns the top and height of a bar from the zero line to v, clipped
// to the plot area.
func (f frame) span(v, zero float64) (float64, float64) {
	top := math.Min(f.y(v), zero)
	bottom := math.Max(f.y(v), zero)
	top = math.Max(top, f.padding)
	bottom = math.Min(bottom, f.bottom())
	return top, math.Max(bottom-top, 0)
}
