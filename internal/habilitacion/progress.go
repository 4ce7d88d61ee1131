package habilitacion

import (
	"math"
	"strings"
)

// Progress summarises the evaluations of one autoevaluación.
type Progress struct {
	Total        int
	Cumple       int
	NoCumple     int
	Parcialmente int
	NoAplica     int
	Pendientes   int
	Percentage   float64
}

// Evaluated is the number of criteria with any outcome recorded.
func (p Progress) Evaluated() int {
	return p.Total - p.Pendientes
}

// Applicable excludes the NO_APLICA criteria.
func (p Progress) Applicable() int {
	return p.Total - p.NoAplica
}

// ComputeProgress counts outcomes. Percentage is
// (CUMPLE + 0.5*PARCIALMENTE) / (total - NO_APLICA) rounded to one decimal,
// or 0 when no criterion applies.
func ComputeProgress(evals []Evaluacion) Progress {
	p := Progress{Total: len(evals)}
	for _, e := range evals {
		switch strings.ToUpper(strings.TrimSpace(e.Cumple)) {
		case Cumple:
			p.Cumple++
		case NoCumple:
			p.NoCumple++
		case Parcialmente:
			p.Parcialmente++
		case NoAplica:
			p.NoAplica++
		default:
			p.Pendientes++
		}
	}
	if applicable := p.Applicable(); applicable > 0 {
		score := float64(p.Cumple) + 0.5*float64(p.Parcialmente)
		p.Percentage = math.Round(score/float64(applicable)*1000) / 10
	}
	return p
}
