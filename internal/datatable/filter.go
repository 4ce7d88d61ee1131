package datatable

import "strings"

// Predicate keeps a row when it returns true. A nil Predicate is ignored.
type Predicate[T any] func(T) bool

// Filter returns the rows matching every non-nil predicate. The input slice
// is not modified.
func Filter[T any](rows []T, preds ...Predicate[T]) []T {
	active := make([]Predicate[T], 0, len(preds))
	for _, p := range preds {
		if p != nil {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return rows
	}
	out := make([]T, 0, len(rows))
next:
	for _, row := range rows {
		for _, p := range active {
			if !p(row) {
				continue next
			}
		}
		out = append(out, row)
	}
	return out
}

// Contains matches rows where any field contains query, ignoring case. An
// empty query disables the predicate.
func Contains[T any](query string, fields ...func(T) string) Predicate[T] {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" || len(fields) == 0 {
		return nil
	}
	return func(row T) bool {
		for _, field := range fields {
			if strings.Contains(strings.ToLower(field(row)), needle) {
				return true
			}
		}
		return false
	}
}

// Equals matches rows whose enum field equals want, ignoring case. An empty
// want disables the predicate.
func Equals[T any](want string, field func(T) string) Predicate[T] {
	want = strings.TrimSpace(want)
	if want == "" {
		return nil
	}
	return func(row T) bool {
		return strings.EqualFold(strings.TrimSpace(field(row)), want)
	}
}

// IntRange matches rows whose value lies within [min, max]; either bound may be
// nil. Rows without a value are excluded once any bound is set.
func IntRange[T any](min, max *int, value func(T) (int, bool)) Predicate[T] {
	if min == nil && max == nil {
		return nil
	}
	return func(row T) bool {
		v, ok := value(row)
		if !ok {
			return false
		}
		if min != nil && v < *min {
			return false
		}
		if max != nil && v > *max {
			return false
		}
		return true
	}
}
