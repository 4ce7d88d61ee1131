package audit

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Entities recorded in audit_logs.
const (
	EntityImportBatch    = "import_batch"
	EntityAutoevaluacion = "autoevaluacion"
	EntityPlanMejora     = "plan_mejora"
)

// Actions recorded in audit_logs.
const (
	ActionResultsImport = "results.import"
	ActionEstadoChange  = "autoevaluacion.estado"
	ActionPlanUpdate    = "plan.update"
)

var entityLabels = map[string]string{
	EntityImportBatch:    "Importación de resultados",
	EntityAutoevaluacion: "Autoevaluación",
	EntityPlanMejora:     "Plan de mejora",
}

var actionLabels = map[string]string{
	ActionResultsImport: "Importó resultados",
	ActionEstadoChange:  "Cambió estado",
	ActionPlanUpdate:    "Actualizó plan",
}

// EntityLabel returns the display name of an entity type.
func EntityLabel(entity string) string {
	if label, ok := entityLabels[entity]; ok {
		return label
	}
	return entity
}

// ActionLabel returns the display name of an action.
func ActionLabel(action string) string {
	if label, ok := actionLabels[action]; ok {
		return label
	}
	return action
}

// EntityOptions lists the entity filter choices in display order.
func EntityOptions() []string {
	return []string{EntityAutoevaluacion, EntityPlanMejora, EntityImportBatch}
}

// TimelineFilters holds the filters of the activity timeline.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one audit entry ready for display.
type TimelineRow struct {
	At       time.Time
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Summary  string
}

// ActionLabel is the display name of the row's action.
func (r TimelineRow) ActionLabel() string { return ActionLabel(r.Action) }

// EntityLabel is the display name of the row's entity.
func (r TimelineRow) EntityLabel() string { return EntityLabel(r.Entity) }

// Link points at the page of the audited record, when there is one.
func (r TimelineRow) Link() string {
	switch r.Entity {
	case EntityAutoevaluacion:
		return "/habilitacion/autoevaluaciones/" + r.EntityID
	case EntityPlanMejora:
		return "/habilitacion/planes"
	}
	return ""
}

// PagingInfo is the paging metadata of a timeline page.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}

// FiltersViewModel echoes the filters back into the form.
type FiltersViewModel struct {
	From   time.Time
	To     time.Time
	Actor  string
	Entity string
	Action string
}

// EntityOption is one choice of the entity filter.
type EntityOption struct {
	Value    string
	Label    string
	Selected bool
}

// ViewModel is the data of the activity page.
type ViewModel struct {
	Filters  FiltersViewModel
	Entities []EntityOption
	Rows     []TimelineRow
	Paging   PagingInfo
	// Links keep the active filters.
	ExportURL string
	PrevURL   string
	NextURL   string
}

// summarize renders the meta column as a short sentence. Known keys come
// first in a fixed order; the rest follow alphabetically.
func summarize(meta map[string]any) string {
	if len(meta) == 0 {
		return ""
	}
	known := []string{"file", "estado", "status", "created", "skipped", "avance", "observaciones"}
	seen := make(map[string]bool, len(known))
	parts := make([]string, 0, len(meta))
	for _, key := range known {
		if v, ok := meta[key]; ok {
			seen[key] = true
			parts = append(parts, fmt.Sprintf("%s: %v", key, v))
		}
	}
	rest := make([]string, 0)
	for key := range meta {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		parts = append(parts, fmt.Sprintf("%s: %v", key, meta[key]))
	}
	return strings.Join(parts, " · ")
}
