package svg

import (
	"fmt"
	"html/template"
	"math"
	"strings"
)

// Donut renders proportional arcs for the slices. Zero and negative slices
// are skipped; with nothing to draw a grey ring is rendered.
func Donut(size int, slices []Slice, opts DonutOpts) (template.HTML, error) {
	if size <= 0 {
		size = DonutSize
	}
	if size < 60 {
		return "", fmt.Errorf("svg: viewport too small")
	}
	total := 0.0
	for _, s := range slices {
		if finite(s.Value) && s.Value > 0 {
			total += s.Value
		}
	}

	legendH := 16 * len(slices)
	cx, cy := float64(size)/2, float64(size)/2
	outer := float64(size)/2 - 8
	inner := outer * 0.62

	var b strings.Builder
	titleID := makeID(opts.Title, "donut-title")
	descID := makeID(opts.Title, "donut-desc")
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" role="img" aria-labelledby="%s %s">`, size, size+legendH, titleID, descID)
	fmt.Fprintf(&b, `<title id="%s">%s</title>`, titleID, template.HTMLEscapeString(fallback(opts.Title, "Distribución")))
	fmt.Fprintf(&b, `<desc id="%s">%s</desc>`, descID, template.HTMLEscapeString(fallback(opts.Description, "Proporción por estado")))

	if total == 0 {
		fmt.Fprintf(&b, `<circle cx="%.2f" cy="%.2f" r="%.2f" fill="none" stroke="%s" stroke-width="%.2f"></circle>`, cx, cy, (outer+inner)/2, ColorMuted, outer-inner)
	} else {
		angle := -math.Pi / 2
		for _, s := range slices {
			if !finite(s.Value) || s.Value <= 0 {
				continue
			}
			sweep := s.Value / total * 2 * math.Pi
			color := fallback(s.Color, ColorPrimary)
			label := fmt.Sprintf("%s: %s (%.1f%%)", s.Label, formatTick(s.Value), s.Value/total*100)
			if sweep >= 2*math.Pi-1e-9 {
				// A single full slice cannot be drawn as one arc.
				fmt.Fprintf(&b, `<circle cx="%.2f" cy="%.2f" r="%.2f" fill="none" stroke="%s" stroke-width="%.2f"><title>%s</title></circle>`, cx, cy, (outer+inner)/2, color, outer-inner, template.HTMLEscapeString(label))
				break
			}
			fmt.Fprintf(&b, `<path d="%s" fill="%s"><title>%s</title></path>`, arc(cx, cy, outer, inner, angle, angle+sweep), color, template.HTMLEscapeString(label))
			angle += sweep
		}
	}

	if opts.CenterText != "" {
		fmt.Fprintf(&b, `<text x="%.2f" y="%.2f" font-size="22" font-weight="600" text-anchor="middle" fill="#0f172a">%s</text>`, cx, cy+4, template.HTMLEscapeString(opts.CenterText))
	}
	if opts.CenterSub != "" {
		fmt.Fprintf(&b, `<text x="%.2f" y="%.2f" font-size="10" text-anchor="middle" fill="%s">%s</text>`, cx, cy+20, colorAxis, template.HTMLEscapeString(opts.CenterSub))
	}
	for i, s := range slices {
		y := float64(size) + float64(i)*16 + 4
		legend(&b, 12, y, fallback(s.Color, ColorPrimary), fmt.Sprintf("%s (%s)", s.Label, formatTick(s.Value)), false)
	}
	b.WriteString("</svg>")
	return template.HTML(b.String()), nil
}

func arc(cx, cy, outer, inner, from, to float64) string {
	large := 0
	if to-from > math.Pi {
		large = 1
	}
	x0, y0 := cx+outer*math.Cos(from), cy+outer*math.Sin(from)
	x1, y1 := cx+outer*math.Cos(to), cy+outer*math.Sin(to)
	x2, y2 := cx+inner*math.Cos(to), cy+inner*math.Sin(to)
	x3, y3 := cx+inner*math.Cos(from), cy+inner*math.Sin(from)
	return fmt.Sprintf("M%.2f %.2f A%.2f %.2f 0 %d 1 %.2f %.2f L%.2f %.2f A%.2f %.2f 0 %d 0 %.2f %.2f Z",
		x0, y0, outer, outer, large, x1, y1, x2, y2, inner, inner, large, x3, y3)
}
