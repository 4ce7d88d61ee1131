package payload

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type named struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func TestRefAcceptsBareAndEmbeddedShapes(t *testing.T) {
	var doc struct {
		A Ref[named] `json:"a"`
		B Ref[named] `json:"b"`
		C Ref[named] `json:"c"`
		D Ref[named] `json:"d"`
	}
	err := json.Unmarshal([]byte(`{"a":7,"b":"12","c":{"id":"3","name":"Sede Norte"},"d":null}`), &doc)
	require.NoError(t, err)

	assert.Equal(t, int64(7), doc.A.ID)
	assert.Nil(t, doc.A.Embedded)
	assert.Equal(t, int64(12), doc.B.ID)
	require.NotNil(t, doc.C.Embedded)
	assert.Equal(t, int64(3), doc.C.ID)
	assert.Equal(t, "Sede Norte", doc.C.Embedded.Name)
	assert.True(t, doc.D.IsZero())
}

func TestRefRejectsGarbage(t *testing.T) {
	var ref Ref[named]
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &ref))
	assert.Error(t, json.Unmarshal([]byte(`true`), &ref))
}

func TestResolvePrefersEmbedded(t *testing.T) {
	lookup := map[int64]named{1: {ID: 1, Name: "lookup"}}
	got, ok := Resolve(Embed(1, named{ID: 1, Name: "embedded"}), lookup)
	require.True(t, ok)
	assert.Equal(t, "embedded", got.Name)

	got, ok = Resolve(RefTo[named](1), lookup)
	require.True(t, ok)
	assert.Equal(t, "lookup", got.Name)

	_, ok = Resolve(RefTo[named](99), lookup)
	assert.False(t, ok)
}

func TestNumberShapes(t *testing.T) {
	var doc struct {
		A Number `json:"a"`
		B Number `json:"b"`
		C Number `json:"c"`
		D Number `json:"d"`
		E Number `json:"e"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":85.5,"b":"90,25","c":null,"d":"n/a","e":"95%"}`), &doc))

	assert.Equal(t, Float(85.5), doc.A)
	assert.InDelta(t, 90.25, doc.B.Value, 1e-9)
	assert.False(t, doc.C.Valid)
	assert.False(t, doc.D.Valid)
	assert.InDelta(t, 95.0, doc.E.Value, 1e-9)

	assert.False(t, Float(math.Inf(1)).Finite())
	assert.True(t, math.IsNaN(Number{}.OrNaN()))

	out, err := json.Marshal(Number{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}

func TestDateLayouts(t *testing.T) {
	assert.Equal(t, "2025-03-01", ParseDate("2025-03-01").String())
	assert.Equal(t, "2025-03-01", ParseDate("2025-03-01T10:00:00Z").String())
	assert.Equal(t, "2025-03-01", ParseDate("01/03/2025").String())
	assert.False(t, ParseDate("mañana").Valid)

	var d Date
	require.NoError(t, json.Unmarshal([]byte(`null`), &d))
	assert.False(t, d.Valid)
}
