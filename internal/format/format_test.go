package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/habilita/habilita/internal/payload"
)

type sede struct {
	ID     int64
	Nombre string
}

func TestCatalogFallsBackToRawCode(t *testing.T) {
	c := Catalog{"CUMPLE": {Label: "Cumple", Color: "success"}}
	assert.Equal(t, Badge{Label: "Cumple", Color: "success"}, c.Badge(" cumple "))
	assert.Equal(t, Badge{Label: "RARO", Color: NeutralColor}, c.Badge("RARO"))
	assert.Equal(t, "Sin estado", c.Label(""))
	assert.True(t, c.Known("Cumple"))
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2025, 3, 10, 18, 30, 0, 0, time.UTC)

	days, ok := DaysUntil(payload.ParseDate("2025-03-20"), now)
	assert.True(t, ok)
	assert.Equal(t, 10, days)

	days, ok = DaysUntil(payload.ParseDate("2025-03-09"), now)
	assert.True(t, ok)
	assert.Equal(t, -1, days)

	_, ok = DaysUntil(payload.Date{}, now)
	assert.False(t, ok)
}

func TestExpiryBadge(t *testing.T) {
	assert.Equal(t, "Vencido", ExpiryBadge(-3, true).Label)
	assert.Equal(t, "Por vencer", ExpiryBadge(0, true).Label)
	assert.Equal(t, "Por vencer", ExpiryBadge(30, true).Label)
	assert.Equal(t, "Vigente", ExpiryBadge(31, true).Label)
	assert.Equal(t, "Sin fecha", ExpiryBadge(0, false).Label)
}

func TestRefTextResolutionOrder(t *testing.T) {
	pick := func(s sede) string { return s.Nombre }
	lookup := map[int64]sede{4: {ID: 4, Nombre: "Lookup"}}

	assert.Equal(t, "Embebida", RefText(payload.Embed(4, sede{ID: 4, Nombre: "Embebida"}), "Plana", lookup, pick, "Sin sede"))
	assert.Equal(t, "Plana", RefText(payload.RefTo[sede](4), "Plana", lookup, pick, "Sin sede"))
	assert.Equal(t, "Lookup", RefText(payload.RefTo[sede](4), "", lookup, pick, "Sin sede"))
	assert.Equal(t, "Sin sede", RefText(payload.RefTo[sede](5), "", lookup, pick, "Sin sede"))
}
