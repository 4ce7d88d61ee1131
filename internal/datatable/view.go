package datatable

import (
	"math"
	"net/url"
	"strconv"
	"time"
)

// EmptyText is shown for missing values.
const EmptyText = "—"

// Header is a rendered column header.
type Header struct {
	Key       string
	Label     string
	Sortable  bool
	Active    bool
	Dir       Direction
	Hidden    bool
	SortURL   string
	ToggleURL string
}

// Row is a rendered row of visible cells.
type Row struct {
	Cells []Cell
}

// PageLink points to a numbered page.
type PageLink struct {
	Number  int
	URL     string
	Current bool
}

// View is the template model for a table.
type View struct {
	Headers    []Header
	Columns    []Header
	Rows       []Row
	Total      int
	Page       int
	TotalPages int
	PageLinks  []PageLink
	PrevURL    string
	NextURL    string
	ServerSide bool
}

// Render builds the view model. base carries the filter parameters that every
// generated link must preserve; path is the page URL.
func Render[T any](t Table[T], page Page[T], state State, path string, base url.Values) View {
	link := func(s State) string {
		q := url.Values{}
		for k, vs := range base {
			for _, v := range vs {
				if v != "" {
					q.Add(k, v)
				}
			}
		}
		for k, vs := range s.Values() {
			q[k] = vs
		}
		if enc := q.Encode(); enc != "" {
			return path + "?" + enc
		}
		return path
	}

	v := View{
		Total:      page.Total,
		Page:       page.Pagination.Page,
		TotalPages: page.Pagination.TotalPages,
		ServerSide: t.ServerSide(),
	}
	visible := make([]Column[T], 0, len(t.Columns))
	for _, col := range t.Columns {
		h := Header{
			Key:       col.Key,
			Label:     col.Label,
			Sortable:  col.Sortable,
			Active:    col.Key == state.SortKey,
			Dir:       state.SortDir,
			Hidden:    state.Hidden[col.Key],
			ToggleURL: link(state.ToggleColumn(col.Key)),
		}
		if col.Sortable {
			h.SortURL = link(state.ToggleSort(col.Key))
		}
		v.Columns = append(v.Columns, h)
		if !h.Hidden {
			v.Headers = append(v.Headers, h)
			visible = append(visible, col)
		}
	}
	for _, row := range page.Rows {
		cells := make([]Cell, 0, len(visible))
		for _, col := range visible {
			cells = append(cells, col.render(row))
		}
		v.Rows = append(v.Rows, Row{Cells: cells})
	}
	for n := 1; n <= page.Pagination.TotalPages; n++ {
		v.PageLinks = append(v.PageLinks, PageLink{Number: n, URL: link(state.WithPage(n)), Current: n == v.Page})
	}
	if page.Pagination.HasPrev() {
		v.PrevURL = link(state.WithPage(v.Page - 1))
	}
	if page.Pagination.HasNext() {
		v.NextURL = link(state.WithPage(v.Page + 1))
	}
	return v
}

// Text formats a cell value for display.
func Text(v any) string {
	k := keyOf(v)
	switch k.kind {
	case kindMissing:
		return EmptyText
	case kindNumber:
		if math.Abs(k.num-math.Round(k.num)) < 1e-9 {
			return strconv.FormatFloat(k.num, 'f', 0, 64)
		}
		return strconv.FormatFloat(k.num, 'f', 2, 64)
	case kindTime:
		return k.at.Format(time.DateOnly)
	}
	return k.text
}
