package datatable

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habilita/habilita/internal/payload"
)

type record struct {
	Name    string
	Score   *float64
	Value   payload.Number
	Expires payload.Date
	Days    int
	HasDays bool
	Estado  string
}

func ptr(v float64) *float64 { return &v }

func names(rows []record) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Name)
	}
	return out
}

func TestSortNullsLastBothDirections(t *testing.T) {
	rows := []record{
		{Name: "a", Score: nil},
		{Name: "b", Score: ptr(3)},
		{Name: "c", Score: ptr(1)},
		{Name: "d", Score: nil},
		{Name: "e", Score: ptr(2)},
	}
	value := func(r record) any { return r.Score }

	asc := append([]record(nil), rows...)
	Sort(asc, value, Asc)
	assert.Equal(t, []string{"c", "e", "b", "a", "d"}, names(asc))

	desc := append([]record(nil), rows...)
	Sort(desc, value, Desc)
	assert.Equal(t, []string{"b", "e", "c", "a", "d"}, names(desc))
}

func TestSortNumberPayloadAndNaN(t *testing.T) {
	rows := []record{
		{Name: "x", Value: payload.Number{}},
		{Name: "y", Value: payload.Float(10)},
		{Name: "z", Value: payload.Float(-5)},
	}
	Sort(rows, func(r record) any { return r.Value }, Desc)
	assert.Equal(t, []string{"y", "z", "x"}, names(rows))
}

func TestSortStringsCollated(t *testing.T) {
	rows := []record{{Name: "Ñandú"}, {Name: "zeta"}, {Name: "árbol"}, {Name: "Beta"}, {Name: "nube"}, {Name: ""}}
	Sort(rows, func(r record) any { return r.Name }, Asc)
	assert.Equal(t, []string{"árbol", "Beta", "nube", "Ñandú", "zeta", ""}, names(rows))
}

func TestSortMixedKindsIsConsistent(t *testing.T) {
	values := map[string]any{
		"n10":  10,
		"n9":   9.5,
		"t":    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		"s2":   "2",
		"sabc": "abc",
		"nil":  nil,
	}
	value := func(r record) any { return values[r.Name] }
	orders := [][]string{
		{"sabc", "nil", "n10", "s2", "t", "n9"},
		{"s2", "n9", "nil", "t", "sabc", "n10"},
		{"t", "n10", "sabc", "n9", "s2", "nil"},
	}
	for _, order := range orders {
		rows := make([]record, 0, len(order))
		for _, name := range order {
			rows = append(rows, record{Name: name})
		}
		Sort(rows, value, Asc)
		assert.Equal(t, []string{"n9", "n10", "t", "s2", "sabc", "nil"}, names(rows), "input %v", order)

		Sort(rows, value, Desc)
		assert.Equal(t, []string{"sabc", "s2", "t", "n10", "n9", "nil"}, names(rows), "input %v", order)
	}
}

func TestSortTimes(t *testing.T) {
	rows := []record{
		{Name: "late", Expires: payload.ParseDate("2026-01-01")},
		{Name: "none"},
		{Name: "early", Expires: payload.ParseDate("2024-01-01")},
	}
	Sort(rows, func(r record) any { return r.Expires }, Asc)
	assert.Equal(t, []string{"early", "late", "none"}, names(rows))
}

func TestPagesOfTwentyFive(t *testing.T) {
	rows := make([]int, 25)
	pages := Pages(rows, 10)
	lengths := make([]int, 0, len(pages))
	for _, p := range pages {
		lengths = append(lengths, len(p))
	}
	assert.Equal(t, []int{10, 10, 5}, lengths)

	assert.Len(t, Paginate(rows, 3, 10), 5)
	assert.Empty(t, Paginate(rows, 4, 10))
}

func TestApplyFiltersThenSortsThenPaginates(t *testing.T) {
	rows := make([]record, 0, 30)
	for i := 0; i < 30; i++ {
		estado := "ABIERTO"
		if i%2 == 1 {
			estado = "CERRADO"
		}
		rows = append(rows, record{Name: string(rune('a' + i%26)), Score: ptr(float64(i)), Estado: estado})
	}
	table := Table[record]{Columns: []Column[record]{
		{Key: "score", Label: "Puntaje", Value: func(r record) any { return r.Score }, Sortable: true},
	}}
	state := State{SortKey: "score", SortDir: Desc, Page: 2, PageSize: 10}

	page, err := table.Apply(context.Background(), rows, state, Equals("abierto", func(r record) string { return r.Estado }))
	require.NoError(t, err)
	assert.Equal(t, 15, page.Total)
	assert.Equal(t, 2, page.Pagination.TotalPages)
	require.Len(t, page.Rows, 5)
	assert.Equal(t, 8.0, *page.Rows[0].Score)
	assert.Equal(t, 0.0, *page.Rows[4].Score)
	assert.Equal(t, 0.0, *rows[0].Score, "input must not be reordered")
}

func TestApplyServerSideDelegates(t *testing.T) {
	var got State
	table := Table[record]{Fetch: func(ctx context.Context, s State) ([]record, int, error) {
		got = s
		return []record{{Name: "remote"}}, 41, nil
	}}
	page, err := table.Apply(context.Background(), []record{{Name: "local"}}, State{Page: 3, PageSize: 20})
	require.NoError(t, err)
	assert.True(t, table.ServerSide())
	assert.Equal(t, 3, got.Page)
	assert.Equal(t, []string{"remote"}, names(page.Rows))
	assert.Equal(t, 3, page.Pagination.TotalPages)

	failing := Table[record]{Fetch: func(ctx context.Context, s State) ([]record, int, error) {
		return nil, 0, errors.New("boom")
	}}
	_, err = failing.Apply(context.Background(), nil, State{})
	assert.Error(t, err)
}

func TestFilters(t *testing.T) {
	rows := []record{
		{Name: "Clínica Norte", Days: -2, HasDays: true, Estado: "VENCIDO"},
		{Name: "Hospital Sur", Days: 15, HasDays: true, Estado: "VIGENTE"},
		{Name: "Centro", Days: 90, HasDays: true, Estado: "VIGENTE"},
		{Name: "Sin fecha"},
	}
	byName := func(r record) string { return r.Name }
	days := func(r record) (int, bool) { return r.Days, r.HasDays }
	lo, hi := 0, 30

	assert.Equal(t, []string{"Hospital Sur"}, names(Filter(rows, Contains("SUR", byName))))
	assert.Len(t, Filter(rows, Contains[record]("", byName)), 4)
	assert.Len(t, Filter(rows, Equals[record]("", func(r record) string { return r.Estado })), 4)
	assert.Equal(t, []string{"Hospital Sur"}, names(Filter(rows, IntRange(&lo, &hi, days))))
	assert.Equal(t, []string{"Clínica Norte", "Hospital Sur"}, names(Filter(rows, IntRange(nil, &hi, days))))
	assert.Nil(t, IntRange[record](nil, nil, days))
}

func TestStateRoundTripAndToggles(t *testing.T) {
	q, err := url.ParseQuery("sort=name&dir=desc&page=3&size=500&hide=b,a")
	require.NoError(t, err)
	s := ParseState(q, 10)
	assert.Equal(t, Desc, s.SortDir)
	assert.Equal(t, MaxPageSize, s.PageSize)
	assert.Equal(t, []string{"a", "b"}, s.HiddenKeys())

	flipped := s.ToggleSort("name")
	assert.Equal(t, Asc, flipped.SortDir)
	assert.Equal(t, 1, flipped.Page)
	other := s.ToggleSort("score")
	assert.Equal(t, "score", other.SortKey)
	assert.Equal(t, Asc, other.SortDir)

	shown := s.ToggleColumn("a")
	assert.Equal(t, []string{"b"}, shown.HiddenKeys())
	assert.Equal(t, []string{"a", "b"}, s.HiddenKeys(), "toggle must not mutate the original")
}

func TestRenderHidesColumnsAndBuildsLinks(t *testing.T) {
	table := Table[record]{Columns: []Column[record]{
		{Key: "name", Label: "Nombre", Value: func(r record) any { return r.Name }, Sortable: true},
		{Key: "score", Label: "Puntaje", Value: func(r record) any { return r.Score }},
	}}
	state := State{Page: 1, PageSize: 1, Hidden: map[string]bool{"score": true}}
	rows := []record{{Name: "uno", Score: ptr(1.5)}, {Name: "dos"}}
	page, err := table.Apply(context.Background(), rows, state)
	require.NoError(t, err)

	view := Render(table, page, state, "/lista", url.Values{"q": {"u"}})
	require.Len(t, view.Headers, 1)
	assert.Len(t, view.Columns, 2)
	assert.Equal(t, "uno", view.Rows[0].Cells[0].Text)
	assert.Contains(t, view.NextURL, "page=2")
	assert.Contains(t, view.NextURL, "q=u")
	assert.Empty(t, view.PrevURL)
	assert.Contains(t, view.Headers[0].SortURL, "sort=name")
}

func TestText(t *testing.T) {
	assert.Equal(t, EmptyText, Text(nil))
	assert.Equal(t, "3", Text(3))
	assert.Equal(t, "2.50", Text(2.5))
	assert.Equal(t, "2025-01-02", Text(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "hola", Text("hola"))
}
