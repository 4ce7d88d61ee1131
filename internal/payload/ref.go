// Package payload normalises the loosely shaped JSON returned by the
// regulatory backend into explicit Go types at the client boundary.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Ref is a reference to a related record that the backend sends either as a
// bare identifier or as the embedded object itself.
type Ref[T any] struct {
	ID       int64
	Embedded *T
}

// RefTo builds an id-only reference.
func RefTo[T any](id int64) Ref[T] {
	return Ref[T]{ID: id}
}

// Embed builds a reference carrying the full object.
func Embed[T any](id int64, value T) Ref[T] {
	return Ref[T]{ID: id, Embedded: &value}
}

// IsZero reports whether the reference carries neither id nor object.
func (r Ref[T]) IsZero() bool {
	return r.ID == 0 && r.Embedded == nil
}

// UnmarshalJSON accepts a number, a numeric string, null or an object with an
// "id" member.
func (r *Ref[T]) UnmarshalJSON(data []byte) error {
	*r = Ref[T]{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	switch trimmed[0] {
	case '{':
		var obj T
		// A mistyped member (e.g. a string id) still leaves the rest decoded.
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &typeErr) {
				return fmt.Errorf("payload: decode reference object: %w", err)
			}
		}
		var probe struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return fmt.Errorf("payload: decode reference id: %w", err)
		}
		r.ID, _ = parseID(probe.ID)
		r.Embedded = &obj
		return nil
	default:
		id, ok := parseID(trimmed)
		if !ok {
			return fmt.Errorf("payload: unsupported reference %s", string(trimmed))
		}
		r.ID = id
		return nil
	}
}

// MarshalJSON writes the embedded object when present, otherwise the id.
func (r Ref[T]) MarshalJSON() ([]byte, error) {
	if r.Embedded != nil {
		return json.Marshal(r.Embedded)
	}
	if r.ID == 0 {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(r.ID, 10)), nil
}

// Resolve returns the embedded object or the lookup entry for the id.
func Resolve[T any](r Ref[T], lookup map[int64]T) (T, bool) {
	if r.Embedded != nil {
		return *r.Embedded, true
	}
	if r.ID != 0 && lookup != nil {
		if v, ok := lookup[r.ID]; ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func parseID(raw []byte) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	text := string(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		text = strings.TrimSpace(s)
	}
	if id, err := strconv.ParseInt(text, 10, 64); err == nil {
		return id, true
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}
