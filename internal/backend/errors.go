package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/habilita/habilita/internal/platform/httpx"
)

// GenericMessage is shown when the backend gives no usable explanation.
const GenericMessage = "Ocurrió un error al comunicarse con el servidor."

// unprefixed keys carry messages that are not tied to a single field.
var unprefixed = map[string]bool{
	"detail":           true,
	"non_field_errors": true,
	"message":          true,
	"error":            true,
}

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int
	Message string
	Fields  map[string][]string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend: status %d", e.Status)
}

// Unwrap maps the status onto the shared sentinels so handlers can use
// httpx.RespondError.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return httpx.ErrNotFound
	case e.Status == http.StatusUnauthorized:
		return httpx.ErrUnauthorized
	case e.Status == http.StatusForbidden:
		return httpx.ErrForbidden
	case e.Status == http.StatusConflict:
		return httpx.ErrDuplicate
	case e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity:
		return httpx.ErrValidation
	case e.Status >= 500:
		return httpx.ErrUpstream
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var decoded any
	if len(body) > 0 && json.Unmarshal(body, &decoded) == nil {
		apiErr.Fields = collectFields(decoded)
		apiErr.Message = FlattenErrors(decoded)
	}
	if apiErr.Message == "" {
		apiErr.Message = GenericMessage
	}
	return apiErr
}

// FlattenErrors turns a validation payload into one display string. Object
// keys are sorted and rendered as "field: msg1; msg2"; general keys such as
// detail and non_field_errors are rendered without a prefix. Entries are
// joined with " | ".
func FlattenErrors(payload any) string {
	var parts []string
	flatten("", payload, &parts)
	return strings.Join(parts, " | ")
}

func flatten(prefix string, v any, parts *[]string) {
	switch val := v.(type) {
	case nil:
	case string:
		if text := strings.TrimSpace(val); text != "" {
			*parts = append(*parts, withPrefix(prefix, text))
		}
	case []any:
		msgs := make([]string, 0, len(val))
		for _, item := range val {
			switch item := item.(type) {
			case string:
				if text := strings.TrimSpace(item); text != "" {
					msgs = append(msgs, text)
				}
			case map[string]any, []any:
				flatten(prefix, item, parts)
			default:
				msgs = append(msgs, fmt.Sprint(item))
			}
		}
		if len(msgs) > 0 {
			*parts = append(*parts, withPrefix(prefix, strings.Join(msgs, "; ")))
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := k
			if unprefixed[k] {
				child = prefix
			} else if prefix != "" {
				child = prefix + "." + k
			}
			flatten(child, val[k], parts)
		}
	default:
		*parts = append(*parts, withPrefix(prefix, fmt.Sprint(val)))
	}
}

func withPrefix(prefix, text string) string {
	if prefix == "" {
		return text
	}
	return prefix + ": " + text
}

func collectFields(v any) map[string][]string {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	fields := map[string][]string{}
	for k, raw := range obj {
		if unprefixed[k] {
			continue
		}
		switch val := raw.(type) {
		case string:
			fields[k] = []string{val}
		case []any:
			for _, item := range val {
				if s, ok := item.(string); ok {
					fields[k] = append(fields[k], s)
				}
			}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// Message extracts a user-facing message from err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return GenericMessage
}
