package indicators

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/habilita/habilita/internal/datatable"
)

// GroupStat aggregates compliance for one headquarters or indicator.
type GroupStat struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Total        int     `json:"total"`
	Compliant    int     `json:"compliant"`
	NonCompliant int     `json:"nonCompliant"`
	Undetermined int     `json:"undetermined"`
	Rate         float64 `json:"rate"`
	AvgValue     float64 `json:"avgValue"`
	AvgTarget    float64 `json:"avgTarget"`

	valueSum, targetSum     float64
	valueCount, targetCount int
}

// Summary is the dashboard aggregate over a set of results.
type Summary struct {
	Total          int         `json:"total"`
	Compliant      int         `json:"compliant"`
	NonCompliant   int         `json:"nonCompliant"`
	Undetermined   int         `json:"undetermined"`
	Rate           float64     `json:"rate"`
	Indicators     int         `json:"indicators"`
	Headquarters   int         `json:"headquarters"`
	ByHeadquarters []GroupStat `json:"byHeadquarters"`
	ByIndicator    []GroupStat `json:"byIndicator"`
	Inconsistent   []string    `json:"inconsistentTrends,omitempty"`
}

// Summarize counts compliance outcomes. Rate is the compliant share of the
// determined results, as a percentage rounded to one decimal.
func Summarize(results []DetailedResult) Summary {
	var s Summary
	byHQ := map[int64]*GroupStat{}
	byInd := map[int64]*GroupStat{}
	inconsistent := map[string]bool{}

	for _, r := range results {
		s.Total++
		switch r.Compliance.Status {
		case StatusCompliant:
			s.Compliant++
		case StatusNonCompliant:
			s.NonCompliant++
		default:
			s.Undetermined++
		}
		group(byHQ, r.HeadquartersID, r.HeadquartersName).add(r)
		group(byInd, r.IndicatorID, r.IndicatorName).add(r)
		if !r.TrendRecognized {
			inconsistent[r.IndicatorName] = true
		}
	}
	s.Rate = rate(s.Compliant, s.Compliant+s.NonCompliant)
	s.ByHeadquarters = finish(byHQ)
	s.ByIndicator = finish(byInd)
	s.Headquarters = len(s.ByHeadquarters)
	s.Indicators = len(s.ByIndicator)
	for name := range inconsistent {
		s.Inconsistent = append(s.Inconsistent, name)
	}
	slices.Sort(s.Inconsistent)
	return s
}

func group(m map[int64]*GroupStat, id int64, name string) *GroupStat {
	g, ok := m[id]
	if !ok {
		g = &GroupStat{ID: id, Name: name}
		m[id] = g
	}
	return g
}

func (g *GroupStat) add(r DetailedResult) {
	g.Total++
	switch r.Compliance.Status {
	case StatusCompliant:
		g.Compliant++
	case StatusNonCompliant:
		g.NonCompliant++
	default:
		g.Undetermined++
	}
	if v, ok := r.CalculatedValue.Float64(); ok {
		g.valueSum += v
		g.valueCount++
	}
	if v, ok := r.Target.Float64(); ok {
		g.targetSum += v
		g.targetCount++
	}
}

func finish(m map[int64]*GroupStat) []GroupStat {
	out := make([]GroupStat, 0, len(m))
	for _, g := range m {
		g.Rate = rate(g.Compliant, g.Compliant+g.NonCompliant)
		if g.valueCount > 0 {
			g.AvgValue = round1(g.valueSum / float64(g.valueCount))
		}
		if g.targetCount > 0 {
			g.AvgTarget = round1(g.targetSum / float64(g.targetCount))
		}
		out = append(out, *g)
	}
	slices.SortFunc(out, func(a, b GroupStat) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func rate(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round1(float64(part) * 100 / float64(whole))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// SeriesPoint is one period of an indicator time series.
type SeriesPoint struct {
	Period string  `json:"period"`
	Value  float64 `json:"value"`
	Target float64 `json:"target"`
	key    int
}

// Series averages an indicator's values per period across headquarters,
// ordered chronologically. Periods with no usable value are skipped.
func Series(results []DetailedResult, indicatorID int64) []SeriesPoint {
	type acc struct {
		key                 int
		valueSum, targetSum float64
		valueN, targetN     int
	}
	buckets := map[string]*acc{}
	for _, r := range results {
		if r.IndicatorID != indicatorID {
			continue
		}
		v, ok := r.CalculatedValue.Float64()
		if !ok {
			continue
		}
		b, exists := buckets[r.PeriodLabel]
		if !exists {
			b = &acc{key: r.PeriodKey()}
			buckets[r.PeriodLabel] = b
		}
		b.valueSum += v
		b.valueN++
		if t, ok := r.Target.Float64(); ok {
			b.targetSum += t
			b.targetN++
		}
	}
	out := make([]SeriesPoint, 0, len(buckets))
	for label, b := range buckets {
		p := SeriesPoint{Period: label, Value: round2(b.valueSum / float64(b.valueN)), key: b.key}
		if b.targetN > 0 {
			p.Target = round2(b.targetSum / float64(b.targetN))
		} else {
			p.Target = math.NaN()
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b SeriesPoint) int { return cmp.Compare(a.key, b.key) })
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// RankByGap orders results by Diferencia, worst first, with undetermined
// results last. limit <= 0 keeps all.
func RankByGap(results []DetailedResult, limit int) []DetailedResult {
	ranked := make([]DetailedResult, len(results))
	copy(ranked, results)
	datatable.Sort(ranked, func(r DetailedResult) any { return r.Diferencia }, datatable.Asc)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// Filter narrows enriched results for the dashboard and results table.
type Filter struct {
	Year           int
	Frequency      Frequency
	HeadquartersID int64
	IndicatorID    int64
	Status         Status
	Search         string
}

// Predicates converts the filter into datatable predicates.
func (f Filter) Predicates() []datatable.Predicate[DetailedResult] {
	var preds []datatable.Predicate[DetailedResult]
	if f.Year > 0 {
		preds = append(preds, func(r DetailedResult) bool { return r.Period.Year == f.Year })
	}
	if f.HeadquartersID > 0 {
		preds = append(preds, func(r DetailedResult) bool { return r.HeadquartersID == f.HeadquartersID })
	}
	if f.IndicatorID > 0 {
		preds = append(preds, func(r DetailedResult) bool { return r.IndicatorID == f.IndicatorID })
	}
	preds = append(preds,
		datatable.Equals(string(f.Frequency), func(r DetailedResult) string { return string(r.Frequency) }),
		datatable.Equals(string(f.Status), func(r DetailedResult) string { return string(r.Compliance.Status) }),
		datatable.Contains(f.Search,
			func(r DetailedResult) string { return r.IndicatorName },
			func(r DetailedResult) string { return r.IndicatorCode },
			func(r DetailedResult) string { return r.HeadquartersName },
		),
	)
	return preds
}

// Apply returns the results matching f.
func (f Filter) Apply(results []DetailedResult) []DetailedResult {
	return datatable.Filter(results, f.Predicates()...)
}

// Years lists the distinct years present, most recent first.
func Years(results []DetailedResult) []int {
	seen := map[int]bool{}
	var out []int
	for _, r := range results {
		if r.Period.Year > 0 && !seen[r.Period.Year] {
			seen[r.Period.Year] = true
			out = append(out, r.Period.Year)
		}
	}
	slices.Sort(out)
	slices.Reverse(out)
	return out
}

// FormatValue renders a value with its unit.
func FormatValue(n float64, unit string) string {
	text := strconv.FormatFloat(round2(n), 'f', -1, 64)
	if isPercentUnit(unit) {
		return text + "%"
	}
	return text
}
