package indicators

import "strings"

// Trend is the direction in which a good indicator value moves.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
)

// trendSynonyms is the single source of truth for the spellings the backend
// and the spreadsheets use for trend metadata.
var trendSynonyms = map[string]Trend{
	"increasing":     TrendIncreasing,
	"creciente":      TrendIncreasing,
	"ascendente":     TrendIncreasing,
	"asc":            TrendIncreasing,
	"up":             TrendIncreasing,
	"alza":           TrendIncreasing,
	"subir":          TrendIncreasing,
	"mayor":          TrendIncreasing,
	"positiva":       TrendIncreasing,
	"positive":       TrendIncreasing,
	"higher":         TrendIncreasing,
	"mayor es mejor": TrendIncreasing,
	"decreasing":     TrendDecreasing,
	"decreciente":    TrendDecreasing,
	"descendente":    TrendDecreasing,
	"desc":           TrendDecreasing,
	"down":           TrendDecreasing,
	"baja":           TrendDecreasing,
	"bajar":          TrendDecreasing,
	"menor":          TrendDecreasing,
	"negativa":       TrendDecreasing,
	"negative":       TrendDecreasing,
	"lower":          TrendDecreasing,
	"menor es mejor": TrendDecreasing,
}

// ParseTrend maps free text onto the canonical enumeration. Empty or unknown
// input defaults to increasing; recognized is false in that case so callers
// can surface inconsistent metadata.
func ParseTrend(raw string) (trend Trend, recognized bool) {
	key := strings.Join(strings.Fields(strings.ToLower(raw)), " ")
	if t, ok := trendSynonyms[key]; ok {
		return t, true
	}
	return TrendIncreasing, false
}

// Label returns the Spanish display text.
func (t Trend) Label() string {
	if t == TrendDecreasing {
		return "Decreciente"
	}
	return "Creciente"
}
