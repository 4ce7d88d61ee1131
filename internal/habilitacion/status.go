package habilitacion

import (
	"strings"

	"github.com/habilita/habilita/internal/format"
)

// Suggested next states. They drive the buttons shown next to the current
// state; the backend accepts any known state and so do we.
var (
	autoevaluacionFlow = map[string][]string{
		AutoevaluacionBorrador:   {AutoevaluacionEnCurso},
		AutoevaluacionEnCurso:    {AutoevaluacionCompletada},
		AutoevaluacionCompletada: {AutoevaluacionRevisada},
		AutoevaluacionRevisada:   {AutoevaluacionValidada},
	}
	planFlow = map[string][]string{
		PlanPendiente: {PlanEnCurso},
		PlanEnCurso:   {PlanCompletado, PlanVencido},
	}
)

// Transition is a suggested state change rendered as a button.
type Transition struct {
	To    string
	Badge format.Badge
}

// NextAutoevaluacion returns the suggested next states of an autoevaluación.
func NextAutoevaluacion(current string) []Transition {
	return suggestions(autoevaluacionFlow, EstadoAutoevaluacion, current)
}

// NextPlan returns the suggested next states of a plan de mejora.
func NextPlan(current string) []Transition {
	return suggestions(planFlow, EstadoPlan, current)
}

func suggestions(flow map[string][]string, catalog format.Catalog, current string) []Transition {
	next := flow[strings.ToUpper(strings.TrimSpace(current))]
	out := make([]Transition, 0, len(next))
	for _, to := range next {
		out = append(out, Transition{To: to, Badge: catalog.Badge(to)})
	}
	return out
}
