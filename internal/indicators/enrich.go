package indicators

import (
	"github.com/habilita/habilita/internal/format"
	"github.com/habilita/habilita/internal/payload"
)

// Lookup holds the side-loaded metadata used to resolve bare references.
type Lookup struct {
	Indicators   map[int64]Indicator
	Headquarters map[int64]Headquarters
}

// NewLookup indexes indicator and headquarters lists by id.
func NewLookup(indicators []Indicator, headquarters []Headquarters) Lookup {
	l := Lookup{
		Indicators:   make(map[int64]Indicator, len(indicators)),
		Headquarters: make(map[int64]Headquarters, len(headquarters)),
	}
	for _, ind := range indicators {
		l.Indicators[ind.ID] = ind
	}
	for _, hq := range headquarters {
		l.Headquarters[hq.ID] = hq
	}
	return l
}

// Enrich resolves every display field of raw. Each field prefers the embedded
// object, then the flat field on raw, then the lookup entry for the id, then
// a placeholder.
func Enrich(raw RawResult, lookup Lookup) DetailedResult {
	var embInd, lookInd Indicator
	if raw.Indicator.Embedded != nil {
		embInd = *raw.Indicator.Embedded
	}
	indicatorID := raw.Indicator.ID
	if indicatorID == 0 {
		indicatorID = embInd.ID
	}
	if ind, ok := lookup.Indicators[indicatorID]; ok {
		lookInd = ind
	}

	var embHQ, lookHQ Headquarters
	if raw.Headquarters.Embedded != nil {
		embHQ = *raw.Headquarters.Embedded
	}
	hqID := raw.Headquarters.ID
	if hqID == 0 {
		hqID = embHQ.ID
	}
	if hq, ok := lookup.Headquarters[hqID]; ok {
		lookHQ = hq
	}

	unit := format.FirstNonEmpty(embInd.MeasurementUnit, raw.MeasurementUnit, lookInd.MeasurementUnit)
	trend, recognized := ParseTrend(format.FirstNonEmpty(embInd.Trend, raw.Trend, lookInd.Trend))

	out := DetailedResult{
		ID:               raw.ID,
		IndicatorID:      indicatorID,
		IndicatorName:    format.FirstNonEmpty(embInd.Name, raw.IndicatorName, lookInd.Name, UnknownIndicator),
		IndicatorCode:    format.FirstNonEmpty(embInd.Code, raw.IndicatorCode, lookInd.Code),
		MeasurementUnit:  unit,
		Frequency:        ParseFrequency(format.FirstNonEmpty(embInd.MeasurementFrequency, raw.MeasurementFrequency, lookInd.MeasurementFrequency)),
		Trend:            trend,
		TrendRecognized:  recognized,
		HeadquartersID:   hqID,
		HeadquartersName: format.FirstNonEmpty(embHQ.Name, raw.HeadquarterName, lookHQ.Name, UnknownHeadquarters),
		Numerator:        raw.Numerator,
		Denominator:      raw.Denominator,
		Target:           firstValid(embInd.Target, raw.Target, lookInd.Target),
		Period:           Period{Year: raw.Year, Month: raw.Month, Quarter: raw.Quarter, Semester: raw.Semester},
	}
	out.CalculatedValue = CalculatedValue(raw.CalculatedValue, raw.Numerator, raw.Denominator, isPercentUnit(unit))
	out.PeriodLabel = out.Period.Label(out.Frequency)
	out.Compliance = Evaluate(out.CalculatedValue.OrNaN(), out.Target.OrNaN(), trend)
	if gap, ok := Gap(out.CalculatedValue.OrNaN(), out.Target.OrNaN(), trend); ok {
		out.Diferencia = payload.Float(gap)
	}
	return out
}

// EnrichAll enriches every raw result, preserving order.
func EnrichAll(raws []RawResult, lookup Lookup) []DetailedResult {
	out := make([]DetailedResult, 0, len(raws))
	for _, raw := range raws {
		out = append(out, Enrich(raw, lookup))
	}
	return out
}

// CalculatedValue prefers the server value. Otherwise it derives
// numerator/denominator, scaled by 100 for percentage indicators.
func CalculatedValue(server, numerator, denominator payload.Number, percent bool) payload.Number {
	if server.Finite() {
		return server
	}
	num, okNum := numerator.Float64()
	den, okDen := denominator.Float64()
	if !okNum || !okDen || den == 0 {
		return payload.Number{}
	}
	v := num / den
	if percent {
		v *= 100
	}
	return payload.Float(v)
}

func firstValid(values ...payload.Number) payload.Number {
	for _, v := range values {
		if v.Finite() {
			return v
		}
	}
	return payload.Number{}
}
