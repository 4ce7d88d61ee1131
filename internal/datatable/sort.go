package datatable

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Direction is the sort order of the active column.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection defaults to Asc.
func ParseDirection(raw string) Direction {
	if strings.EqualFold(strings.TrimSpace(raw), string(Desc)) {
		return Desc
	}
	return Asc
}

// Toggle flips the direction.
func (d Direction) Toggle() Direction {
	if d == Desc {
		return Asc
	}
	return Desc
}

// Collation is the locale used for string ordering.
var Collation = language.Spanish

type keyKind int

const (
	kindMissing keyKind = iota
	kindNumber
	kindTime
	kindString
)

type sortKey struct {
	kind keyKind
	num  float64
	at   time.Time
	text string
}

// Sort orders rows in place by value. Strings compare with locale-aware,
// case-insensitive collation, numbers numerically and times chronologically.
// In a column mixing kinds, kinds rank numbers, then times, then strings;
// descending reverses that rank along with the values.
// Missing values (nil, empty text, NaN, zero time) always sort last,
// whatever the direction. The sort is stable.
func Sort[T any](rows []T, value func(T) any, dir Direction) {
	if len(rows) < 2 || value == nil {
		return
	}
	type keyed struct {
		row T
		key sortKey
	}
	items := make([]keyed, len(rows))
	for i, row := range rows {
		items[i] = keyed{row: row, key: keyOf(value(row))}
	}
	coll := collate.New(Collation, collate.IgnoreCase)
	slices.SortStableFunc(items, func(a, b keyed) int {
		aMissing, bMissing := a.key.kind == kindMissing, b.key.kind == kindMissing
		switch {
		case aMissing && bMissing:
			return 0
		case aMissing:
			return 1
		case bMissing:
			return -1
		}
		c := compareKeys(coll, a.key, b.key)
		if dir == Desc {
			c = -c
		}
		return c
	})
	for i := range items {
		rows[i] = items[i].row
	}
}

// compareKeys orders by kind first (number < time < string) and then by value
// within the kind, so columns mixing kinds still sort consistently.
func compareKeys(coll *collate.Collator, a, b sortKey) int {
	if a.kind != b.kind {
		return cmp.Compare(a.kind, b.kind)
	}
	switch a.kind {
	case kindNumber:
		return cmp.Compare(a.num, b.num)
	case kindTime:
		return a.at.Compare(b.at)
	}
	return coll.CompareString(a.text, b.text)
}

type floater interface {
	Float64() (float64, bool)
}

type timer interface {
	TimeValue() (time.Time, bool)
}

func keyOf(v any) sortKey {
	switch x := v.(type) {
	case nil:
		return sortKey{}
	case floater:
		if f, ok := x.Float64(); ok {
			return number(f)
		}
		return sortKey{}
	case timer:
		if t, ok := x.TimeValue(); ok && !t.IsZero() {
			return sortKey{kind: kindTime, at: t}
		}
		return sortKey{}
	case time.Time:
		if x.IsZero() {
			return sortKey{}
		}
		return sortKey{kind: kindTime, at: x}
	case *time.Time:
		if x == nil {
			return sortKey{}
		}
		return keyOf(*x)
	case string:
		if strings.TrimSpace(x) == "" {
			return sortKey{}
		}
		return sortKey{kind: kindString, text: x}
	case *string:
		if x == nil {
			return sortKey{}
		}
		return keyOf(*x)
	case int:
		return number(float64(x))
	case int32:
		return number(float64(x))
	case int64:
		return number(float64(x))
	case *int:
		if x == nil {
			return sortKey{}
		}
		return number(float64(*x))
	case *int64:
		if x == nil {
			return sortKey{}
		}
		return number(float64(*x))
	case float32:
		return number(float64(x))
	case float64:
		return number(x)
	case *float64:
		if x == nil {
			return sortKey{}
		}
		return number(*x)
	case bool:
		if x {
			return number(1)
		}
		return number(0)
	case fmt.Stringer:
		return keyOf(x.String())
	}
	return keyOf(fmt.Sprint(v))
}

func number(f float64) sortKey {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return sortKey{}
	}
	return sortKey{kind: kindNumber, num: f}
}
