package indicators

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habilita/habilita/internal/payload"
)

func TestEvaluateFollowsTrend(t *testing.T) {
	cases := []struct {
		name          string
		value, target float64
		trend         Trend
		want          Status
	}{
		{"increasing above", 120, 100, TrendIncreasing, StatusCompliant},
		{"increasing equal", 100, 100, TrendIncreasing, StatusCompliant},
		{"increasing below", 99.9, 100, TrendIncreasing, StatusNonCompliant},
		{"decreasing below", 80, 100, TrendDecreasing, StatusCompliant},
		{"decreasing equal", 100, 100, TrendDecreasing, StatusCompliant},
		{"decreasing above", 101, 100, TrendDecreasing, StatusNonCompliant},
		{"missing value", math.NaN(), 100, TrendIncreasing, StatusUndetermined},
		{"missing target", 50, math.NaN(), TrendDecreasing, StatusUndetermined},
		{"infinite value", math.Inf(1), 100, TrendIncreasing, StatusUndetermined},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.value, tc.target, tc.trend)
			assert.Equal(t, tc.want, got.Status)
		})
	}
}

func TestIsCompliantAcceptsSynonyms(t *testing.T) {
	for _, trend := range []string{"decreasing", "Decreciente", "  DESCENDENTE ", "menor es mejor", "baja"} {
		assert.True(t, IsCompliant(80, 100, trend), trend)
		assert.False(t, IsCompliant(120, 100, trend), trend)
	}
	for _, trend := range []string{"increasing", "Creciente", "ascendente", "", "algo raro"} {
		assert.True(t, IsCompliant(120, 100, trend), trend)
		assert.False(t, IsCompliant(80, 100, trend), trend)
	}
}

func TestParseTrendFlagsUnknownText(t *testing.T) {
	trend, ok := ParseTrend("Mayor   es   mejor")
	assert.True(t, ok)
	assert.Equal(t, TrendIncreasing, trend)

	trend, ok = ParseTrend("estable")
	assert.False(t, ok)
	assert.Equal(t, TrendIncreasing, trend)
}

func TestGapIsDirectionNormalised(t *testing.T) {
	gap, ok := Gap(80, 100, TrendDecreasing)
	require.True(t, ok)
	assert.Equal(t, 20.0, gap)

	gap, ok = Gap(80, 100, TrendIncreasing)
	require.True(t, ok)
	assert.Equal(t, -20.0, gap)

	_, ok = Gap(math.NaN(), 100, TrendIncreasing)
	assert.False(t, ok)
}

func TestComplianceJSONIncludesBoolean(t *testing.T) {
	raw, err := json.Marshal(Evaluate(5, 1, TrendIncreasing))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"compliant","label":"Cumple","compliant":true}`, string(raw))
}

func TestPeriodLabelsAndOrdering(t *testing.T) {
	assert.Equal(t, "2024-03", Period{Year: 2024, Month: 3}.Label(FrequencyMonthly))
	assert.Equal(t, "2024-T1", Period{Year: 2024, Quarter: 1}.Label(FrequencyQuarterly))
	assert.Equal(t, "2024-S2", Period{Year: 2024, Semester: 2}.Label(FrequencySemiannual))
	assert.Equal(t, "2024", Period{Year: 2024}.Label(FrequencyAnnual))
	assert.Equal(t, "2024-T2", Period{Year: 2024, Quarter: 2}.Label(""))
	assert.Equal(t, "Sin periodo", Period{}.Label(FrequencyMonthly))

	assert.Less(t, Period{Year: 2024, Quarter: 1}.SortKey(FrequencyQuarterly), Period{Year: 2024, Month: 4}.SortKey(FrequencyMonthly))
	assert.Less(t, Period{Year: 2023}.SortKey(FrequencyAnnual), Period{Year: 2024, Month: 1}.SortKey(FrequencyMonthly))
}

func TestPeriodValidate(t *testing.T) {
	assert.NoError(t, Period{Year: 2024, Month: 12}.Validate(FrequencyMonthly))
	assert.Error(t, Period{Year: 2024}.Validate(FrequencyMonthly))
	assert.Error(t, Period{Year: 2024, Quarter: 5}.Validate(FrequencyQuarterly))
	assert.Error(t, Period{Year: 2024, Semester: 3}.Validate(FrequencySemiannual))
	assert.NoError(t, Period{Year: 2024}.Validate(FrequencyAnnual))
	assert.Error(t, Period{Year: 12}.Validate(FrequencyAnnual))
}

func TestParseFrequency(t *testing.T) {
	assert.Equal(t, FrequencyQuarterly, ParseFrequency(" Trimestral "))
	assert.Equal(t, FrequencyAnnual, ParseFrequency("anual"))
	assert.Equal(t, Frequency(""), ParseFrequency("quincenal"))
	assert.Equal(t, "Sin frecuencia", Frequency("").Label())
}

func exampleLookup() Lookup {
	return NewLookup(
		[]Indicator{
			{ID: 1, Name: "Tasa de caídas", Code: "IND-01", MeasurementUnit: "%", MeasurementFrequency: "monthly", Target: payload.Float(100), Trend: "decreasing"},
			{ID: 2, Name: "Satisfacción", Code: "IND-02", MeasurementUnit: "%", MeasurementFrequency: "quarterly", Target: payload.Float(100), Trend: "increasing"},
		},
		[]Headquarters{{ID: 10, Name: "Sede Norte"}},
	)
}

func TestExampleScenarioBothCompliant(t *testing.T) {
	lookup := exampleLookup()
	raws := []RawResult{
		{ID: 1, Indicator: payload.RefTo[Indicator](1), Headquarters: payload.RefTo[Headquarters](10), CalculatedValue: payload.Float(80), Year: 2024, Month: 3},
		{ID: 2, Indicator: payload.RefTo[Indicator](2), Headquarters: payload.RefTo[Headquarters](10), CalculatedValue: payload.Float(120), Year: 2024, Quarter: 1},
	}
	results := EnrichAll(raws, lookup)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Compliant(), r.IndicatorName)
		assert.Equal(t, "Sede Norte", r.HeadquartersName)
	}
	assert.Equal(t, "2024-03", results[0].PeriodLabel)
	assert.Equal(t, "2024-T1", results[1].PeriodLabel)

	s := Summarize(results)
	assert.Equal(t, 2, s.Compliant)
	assert.Equal(t, 100.0, s.Rate)
}

func TestEnrichResolutionOrder(t *testing.T) {
	lookup := exampleLookup()

	embedded := Enrich(RawResult{
		Indicator:     payload.Embed(1, Indicator{ID: 1, Name: "Nombre embebido"}),
		IndicatorName: "Nombre plano",
	}, lookup)
	assert.Equal(t, "Nombre embebido", embedded.IndicatorName)

	flat := Enrich(RawResult{Indicator: payload.RefTo[Indicator](1), IndicatorName: "Nombre plano"}, lookup)
	assert.Equal(t, "Nombre plano", flat.IndicatorName)

	idOnly := Enrich(RawResult{Indicator: payload.RefTo[Indicator](1)}, lookup)
	assert.Equal(t, "Tasa de caídas", idOnly.IndicatorName)
	assert.Equal(t, TrendDecreasing, idOnly.Trend)

	unknown := Enrich(RawResult{Indicator: payload.RefTo[Indicator](99), Headquarters: payload.RefTo[Headquarters](77)}, lookup)
	assert.Equal(t, UnknownIndicator, unknown.IndicatorName)
	assert.Equal(t, UnknownHeadquarters, unknown.HeadquartersName)
	assert.Equal(t, StatusUndetermined, unknown.Compliance.Status)
}

func TestEnrichDecodesMixedShapes(t *testing.T) {
	body := `[
		{"id": 1, "indicator": {"id": 2, "name": "Satisfacción", "trend": "creciente"}, "headquarters": "10",
		 "calculatedValue": "95,5", "target": "90", "year": 2024, "quarter": 2},
		{"id": 2, "indicator": 1, "headquarters": {"id": 10}, "numerator": 3, "denominator": 4,
		 "measurementUnit": "%", "year": 2024, "month": 1}
	]`
	var raws []RawResult
	require.NoError(t, json.Unmarshal([]byte(body), &raws))

	results := EnrichAll(raws, exampleLookup())
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, int64(2), first.IndicatorID)
	v, ok := first.CalculatedValue.Float64()
	require.True(t, ok)
	assert.InDelta(t, 95.5, v, 1e-9)
	assert.True(t, first.Compliant())

	second := results[1]
	v, ok = second.CalculatedValue.Float64()
	require.True(t, ok)
	assert.InDelta(t, 75.0, v, 1e-9)
	assert.Equal(t, "Sede Norte", second.HeadquartersName)
	assert.True(t, second.Compliant(), "75 <= 100 on a decreasing indicator")
}

func TestCalculatedValue(t *testing.T) {
	assert.Equal(t, payload.Float(42), CalculatedValue(payload.Float(42), payload.Float(1), payload.Float(2), true))
	assert.Equal(t, payload.Float(50), CalculatedValue(payload.Number{}, payload.Float(1), payload.Float(2), true))
	assert.Equal(t, payload.Float(0.5), CalculatedValue(payload.Number{}, payload.Float(1), payload.Float(2), false))
	assert.False(t, CalculatedValue(payload.Number{}, payload.Float(1), payload.Float(0), true).Finite())
	assert.False(t, CalculatedValue(payload.Number{}, payload.Number{}, payload.Float(3), true).Finite())
}

func TestSummarizeCountsAndRate(t *testing.T) {
	results := []DetailedResult{
		{IndicatorID: 1, IndicatorName: "A", HeadquartersID: 1, HeadquartersName: "Norte", Compliance: Compliance{Status: StatusCompliant}, TrendRecognized: true},
		{IndicatorID: 1, IndicatorName: "A", HeadquartersID: 2, HeadquartersName: "Sur", Compliance: Compliance{Status: StatusNonCompliant}, TrendRecognized: true},
		{IndicatorID: 2, IndicatorName: "B", HeadquartersID: 1, HeadquartersName: "Norte", Compliance: Compliance{Status: StatusCompliant}},
		{IndicatorID: 2, IndicatorName: "B", HeadquartersID: 2, HeadquartersName: "Sur", Compliance: Compliance{Status: StatusUndetermined}},
	}
	s := Summarize(results)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Compliant)
	assert.Equal(t, 1, s.NonCompliant)
	assert.Equal(t, 1, s.Undetermined)
	assert.Equal(t, 66.7, s.Rate)
	assert.Equal(t, 2, s.Headquarters)
	assert.Equal(t, 2, s.Indicators)
	assert.Equal(t, []string{"B"}, s.Inconsistent)

	require.Len(t, s.ByHeadquarters, 2)
	assert.Equal(t, "Norte", s.ByHeadquarters[0].Name)
	assert.Equal(t, 100.0, s.ByHeadquarters[0].Rate)
	assert.Equal(t, 0.0, s.ByHeadquarters[1].Rate)

	empty := Summarize(nil)
	assert.Equal(t, 0.0, empty.Rate)
	assert.Zero(t, empty.Total)
}

func TestSeriesAveragesPerPeriodInOrder(t *testing.T) {
	results := []DetailedResult{
		{IndicatorID: 1, Frequency: FrequencyMonthly, Period: Period{Year: 2024, Month: 2}, PeriodLabel: "2024-02", CalculatedValue: payload.Float(10), Target: payload.Float(5)},
		{IndicatorID: 1, Frequency: FrequencyMonthly, Period: Period{Year: 2024, Month: 1}, PeriodLabel: "2024-01", CalculatedValue: payload.Float(4), Target: payload.Float(5)},
		{IndicatorID: 1, Frequency: FrequencyMonthly, Period: Period{Year: 2024, Month: 1}, PeriodLabel: "2024-01", CalculatedValue: payload.Float(6), Target: payload.Float(5)},
		{IndicatorID: 1, Frequency: FrequencyMonthly, Period: Period{Year: 2024, Month: 3}, PeriodLabel: "2024-03"},
		{IndicatorID: 2, Frequency: FrequencyMonthly, Period: Period{Year: 2024, Month: 1}, PeriodLabel: "2024-01", CalculatedValue: payload.Float(99)},
	}
	series := Series(results, 1)
	require.Len(t, series, 2)
	assert.Equal(t, "2024-01", series[0].Period)
	assert.Equal(t, 5.0, series[0].Value)
	assert.Equal(t, "2024-02", series[1].Period)
	assert.Equal(t, 10.0, series[1].Value)
}

func TestRankByGapWorstFirst(t *testing.T) {
	results := []DetailedResult{
		{ID: 1, Diferencia: payload.Float(5)},
		{ID: 2},
		{ID: 3, Diferencia: payload.Float(-10)},
		{ID: 4, Diferencia: payload.Float(0)},
	}
	ranked := RankByGap(results, 3)
	require.Len(t, ranked, 3)
	assert.Equal(t, []int64{3, 4, 1}, []int64{ranked[0].ID, ranked[1].ID, ranked[2].ID})
	assert.Equal(t, int64(1), results[0].ID)
}

func TestFilterApply(t *testing.T) {
	results := []DetailedResult{
		{ID: 1, IndicatorName: "Caídas", Frequency: FrequencyMonthly, Period: Period{Year: 2024}, HeadquartersID: 1, Compliance: Compliance{Status: StatusCompliant}},
		{ID: 2, IndicatorName: "Satisfacción", Frequency: FrequencyQuarterly, Period: Period{Year: 2024}, HeadquartersID: 2, Compliance: Compliance{Status: StatusNonCompliant}},
		{ID: 3, IndicatorName: "Caídas", Frequency: FrequencyMonthly, Period: Period{Year: 2023}, HeadquartersID: 1, Compliance: Compliance{Status: StatusNonCompliant}},
	}
	ids := func(rs []DetailedResult) []int64 {
		out := []int64{}
		for _, r := range rs {
			out = append(out, r.ID)
		}
		return out
	}
	assert.Equal(t, []int64{1, 2, 3}, ids(Filter{}.Apply(results)))
	assert.Equal(t, []int64{1, 2}, ids(Filter{Year: 2024}.Apply(results)))
	assert.Equal(t, []int64{2, 3}, ids(Filter{Status: StatusNonCompliant}.Apply(results)))
	assert.Equal(t, []int64{1}, ids(Filter{Year: 2024, Search: "caíd"}.Apply(results)))
	assert.Equal(t, []int64{2}, ids(Filter{Frequency: FrequencyQuarterly}.Apply(results)))
	assert.Equal(t, []int{2024, 2023}, Years(results))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "95.5%", FormatValue(95.5, "%"))
	assert.Equal(t, "3", FormatValue(3, "días"))
}
