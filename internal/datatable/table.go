// Package datatable implements the sortable, filterable, paginated record
// tables used by every list page. Rows are filtered, then sorted, then
// paginated; a PageFetcher switches the table into server-side mode.
package datatable

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/habilita/habilita/internal/format"
	"github.com/habilita/habilita/internal/shared"
)

// Page size bounds.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Cell is a rendered table cell.
type Cell struct {
	Text  string
	Badge *format.Badge
	Href  string
}

// Column describes how one field of T is displayed and sorted.
type Column[T any] struct {
	Key      string
	Label    string
	Value    func(T) any
	Cell     func(T) Cell
	Sortable bool
}

func (c Column[T]) render(row T) Cell {
	if c.Cell != nil {
		return c.Cell(row)
	}
	if c.Value == nil {
		return Cell{}
	}
	return Cell{Text: Text(c.Value(row))}
}

// State is the user-controlled table state carried in the query string.
type State struct {
	SortKey  string
	SortDir  Direction
	Page     int
	PageSize int
	Hidden   map[string]bool
}

// ParseState reads sort, dir, page, size and hide from q.
func ParseState(q url.Values, defaultSize int) State {
	if defaultSize <= 0 {
		defaultSize = DefaultPageSize
	}
	s := State{
		SortKey:  strings.TrimSpace(q.Get("sort")),
		SortDir:  ParseDirection(q.Get("dir")),
		Page:     1,
		PageSize: defaultSize,
		Hidden:   map[string]bool{},
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		s.Page = page
	}
	if size, err := strconv.Atoi(q.Get("size")); err == nil && size > 0 {
		s.PageSize = min(size, MaxPageSize)
	}
	for _, key := range strings.Split(q.Get("hide"), ",") {
		if key = strings.TrimSpace(key); key != "" {
			s.Hidden[key] = true
		}
	}
	return s
}

// Values encodes the state back into query parameters.
func (s State) Values() url.Values {
	v := url.Values{}
	if s.SortKey != "" {
		v.Set("sort", s.SortKey)
		v.Set("dir", string(s.SortDir))
	}
	if s.Page > 1 {
		v.Set("page", strconv.Itoa(s.Page))
	}
	if s.PageSize > 0 && s.PageSize != DefaultPageSize {
		v.Set("size", strconv.Itoa(s.PageSize))
	}
	if hidden := s.HiddenKeys(); len(hidden) > 0 {
		v.Set("hide", strings.Join(hidden, ","))
	}
	return v
}

// HiddenKeys returns the hidden column keys in a stable order.
func (s State) HiddenKeys() []string {
	keys := make([]string, 0, len(s.Hidden))
	for k, hidden := range s.Hidden {
		if hidden {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// ToggleSort activates key ascending, or flips the direction when key is
// already active. Paging restarts.
func (s State) ToggleSort(key string) State {
	next := s.clone()
	if s.SortKey == key {
		next.SortDir = s.SortDir.Toggle()
	} else {
		next.SortKey = key
		next.SortDir = Asc
	}
	next.Page = 1
	return next
}

// ToggleColumn shows or hides a column. Sorting and filtering are unaffected.
func (s State) ToggleColumn(key string) State {
	next := s.clone()
	next.Hidden[key] = !s.Hidden[key]
	return next
}

// WithPage returns the state on another page.
func (s State) WithPage(page int) State {
	next := s.clone()
	next.Page = page
	return next
}

func (s State) clone() State {
	next := s
	next.Hidden = make(map[string]bool, len(s.Hidden))
	for k, v := range s.Hidden {
		if v {
			next.Hidden[k] = true
		}
	}
	return next
}

// PageFetcher loads one page from the server. Its presence puts the table in
// server-side mode.
type PageFetcher[T any] func(ctx context.Context, state State) (rows []T, total int, err error)

// Table binds columns to an optional server-side fetcher.
type Table[T any] struct {
	Columns []Column[T]
	Fetch   PageFetcher[T]
}

// ServerSide reports whether paging is delegated to Fetch.
func (t Table[T]) ServerSide() bool {
	return t.Fetch != nil
}

// Column returns the column with key.
func (t Table[T]) Column(key string) (Column[T], bool) {
	for _, c := range t.Columns {
		if c.Key == key {
			return c, true
		}
	}
	return Column[T]{}, false
}

// Page is one page of rows plus paging metadata.
type Page[T any] struct {
	Rows       []T
	Total      int
	Pagination shared.Pagination
}

// Apply runs filter, sort and paginate over rows. In server-side mode rows and
// preds are ignored and the fetcher supplies the page.
func (t Table[T]) Apply(ctx context.Context, rows []T, state State, preds ...Predicate[T]) (Page[T], error) {
	if state.PageSize <= 0 {
		state.PageSize = DefaultPageSize
	}
	if t.ServerSide() {
		pageRows, total, err := t.Fetch(ctx, state)
		if err != nil {
			return Page[T]{}, err
		}
		return Page[T]{Rows: pageRows, Total: total, Pagination: shared.NewPagination(state.Page, state.PageSize, total)}, nil
	}

	filtered := Filter(rows, preds...)
	if col, ok := t.Column(state.SortKey); ok && col.Sortable && col.Value != nil {
		sorted := make([]T, len(filtered))
		copy(sorted, filtered)
		Sort(sorted, col.Value, state.SortDir)
		filtered = sorted
	}
	meta := shared.NewPagination(state.Page, state.PageSize, len(filtered))
	return Page[T]{
		Rows:       Paginate(filtered, meta.Page, meta.PerPage),
		Total:      len(filtered),
		Pagination: meta,
	}, nil
}

// Paginate returns the 1-based page of rows.
func Paginate[T any](rows []T, page, size int) []T {
	if size <= 0 {
		size = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start >= len(rows) {
		return []T{}
	}
	end := min(start+size, len(rows))
	return rows[start:end]
}

// Pages splits rows into consecutive pages of size.
func Pages[T any](rows []T, size int) [][]T {
	if size <= 0 {
		size = DefaultPageSize
	}
	out := make([][]T, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		out = append(out, rows[start:min(start+size, len(rows))])
	}
	return out
}
