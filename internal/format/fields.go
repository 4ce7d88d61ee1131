package format

import (
	"strings"

	"github.com/habilita/habilita/internal/payload"
)

// FirstNonEmpty returns the first value that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// RefText reads a display field from a related record that may be embedded
// in ref or only present as a flat field on the parent record. The lookup is
// consulted last; placeholder is returned when nothing resolves.
func RefText[T any](ref payload.Ref[T], flat string, lookup map[int64]T, pick func(T) string, placeholder string) string {
	if ref.Embedded != nil {
		if v := pick(*ref.Embedded); strings.TrimSpace(v) != "" {
			return v
		}
	}
	if strings.TrimSpace(flat) != "" {
		return flat
	}
	if v, ok := lookup[ref.ID]; ok && ref.ID != 0 {
		if text := pick(v); strings.TrimSpace(text) != "" {
			return text
		}
	}
	return placeholder
}
