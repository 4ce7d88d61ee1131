package svg

import (
	"math"
	"strings"
	"testing"
)

func TestLineRendersSeriesAndTarget(t *testing.T) {
	out, err := Line(0, 0, []float64{80, math.NaN(), 95}, []float64{90, 90, 90}, []string{"2024-01", "2024-02", "2024-03"}, LineOpts{Title: "Caídas", ShowDots: true, Unit: "%"})
	if err != nil {
		t.Fatalf("line: %v", err)
	}
	html := string(out)
	if !strings.HasPrefix(html, "<svg") {
		t.Fatalf("expected svg root, got %q", html[:20])
	}
	if strings.Count(html, "<path") != 2 {
		t.Fatalf("expected value and target paths, got %d", strings.Count(html, "<path"))
	}
	if strings.Count(html, "<circle") != 2 {
		t.Fatalf("NaN point must not get a dot")
	}
	if !strings.Contains(html, "stroke-dasharray=\"6,4\"") {
		t.Fatalf("target line must be dashed")
	}
}

func TestLineValidation(t *testing.T) {
	if _, err := Line(0, 0, nil, nil, nil, LineOpts{}); err == nil {
		t.Fatalf("expected error for empty series")
	}
	if _, err := Line(0, 0, []float64{1}, nil, []string{"a", "b"}, LineOpts{}); err == nil {
		t.Fatalf("expected error for label mismatch")
	}
	if _, err := Line(0, 0, []float64{1}, []float64{1, 2}, []string{"a"}, LineOpts{}); err == nil {
		t.Fatalf("expected error for target mismatch")
	}
	if _, err := Line(10, 10, []float64{1}, nil, []string{"a"}, LineOpts{Padding: 20}); err == nil {
		t.Fatalf("expected viewport error")
	}
}

func TestBarsRendersValueAndTargetRects(t *testing.T) {
	out, err := Bars(0, 0, []float64{80, 120}, []float64{100, 100}, []string{"Norte", "Sur"}, BarOpts{Title: "Sedes", Colors: []string{ColorDanger, ColorSuccess}})
	if err != nil {
		t.Fatalf("bars: %v", err)
	}
	html := string(out)
	// two value bars, two target bars and two legend swatches
	if got := strings.Count(html, "<rect"); got != 6 {
		t.Fatalf("expected 6 rects, got %d", got)
	}
	if !strings.Contains(html, ColorDanger) || !strings.Contains(html, ColorSuccess) {
		t.Fatalf("per-bar colors missing")
	}
}

func TestBarsNegativeValues(t *testing.T) {
	out, err := Bars(0, 0, []float64{-5, 10}, nil, []string{"a", "b"}, BarOpts{})
	if err != nil {
		t.Fatalf("bars: %v", err)
	}
	if strings.Contains(string(out), "height=\"-") {
		t.Fatalf("negative heights must be clipped")
	}
}

func TestDonut(t *testing.T) {
	out, err := Donut(0, []Slice{{Label: "Cumple", Value: 3, Color: ColorSuccess}, {Label: "No cumple", Value: 1, Color: ColorDanger}, {Label: "Sin datos", Value: 0}}, DonutOpts{CenterText: "75%"})
	if err != nil {
		t.Fatalf("donut: %v", err)
	}
	html := string(out)
	if strings.Count(html, "<path") != 2 {
		t.Fatalf("expected two arcs, got %d", strings.Count(html, "<path"))
	}
	if !strings.Contains(html, "75%") {
		t.Fatalf("center text missing")
	}

	full, err := Donut(0, []Slice{{Label: "Cumple", Value: 4}}, DonutOpts{})
	if err != nil {
		t.Fatalf("donut full: %v", err)
	}
	if strings.Contains(string(full), "<path") {
		t.Fatalf("a single slice is drawn as a ring")
	}

	empty, err := Donut(0, nil, DonutOpts{})
	if err != nil {
		t.Fatalf("donut empty: %v", err)
	}
	if !strings.Contains(string(empty), ColorMuted) {
		t.Fatalf("empty donut should render a muted ring")
	}
}
