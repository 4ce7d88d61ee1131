package habilitacionhttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/habilita/habilita/internal/datatable"
	"github.com/habilita/habilita/internal/format"
	"github.com/habilita/habilita/internal/habilitacion"
)

// Option is one entry of a select box.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

func options(catalog format.Catalog, order []string, selected string) []Option {
	out := make([]Option, 0, len(order))
	for _, o := range catalog.Options(order...) {
		out = append(out, Option{Value: o.Value, Label: o.Label, Selected: strings.EqualFold(o.Value, selected)})
	}
	return out
}

// ListFilters are the query filters shared by every list page.
type ListFilters struct {
	Search  string
	Estado  string
	MinDays *int
	MaxDays *int
}

// Values encodes the filters for the table links.
func (f ListFilters) Values() url.Values {
	v := url.Values{}
	if f.Search != "" {
		v.Set("q", f.Search)
	}
	if f.Estado != "" {
		v.Set("estado", f.Estado)
	}
	if f.MinDays != nil {
		v.Set("dias_min", strconv.Itoa(*f.MinDays))
	}
	if f.MaxDays != nil {
		v.Set("dias_max", strconv.Itoa(*f.MaxDays))
	}
	return v
}

// MinText prefills the lower bound input.
func (f ListFilters) MinText() string { return optionalText(f.MinDays) }

// MaxText prefills the upper bound input.
func (f ListFilters) MaxText() string { return optionalText(f.MaxDays) }

func optionalText(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

type filterError struct{ field string }

func (e filterError) Error() string { return "invalid " + e.field }

func parseListFilters(q url.Values) (ListFilters, error) {
	f := ListFilters{
		Search: strings.TrimSpace(q.Get("q")),
		Estado: strings.ToUpper(strings.TrimSpace(q.Get("estado"))),
	}
	var err error
	if f.MinDays, err = optionalInt(q.Get("dias_min")); err != nil {
		return ListFilters{}, filterError{field: "dias_min"}
	}
	if f.MaxDays, err = optionalInt(q.Get("dias_max")); err != nil {
		return ListFilters{}, filterError{field: "dias_max"}
	}
	return f, nil
}

func optionalInt(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ListViewModel drives the shared list template.
type ListViewModel struct {
	Heading     string
	Description string
	Filters     ListFilters
	EstadoLabel string
	Estados     []Option
	RangeLabel  string
	Table       datatable.View
	Warnings    []string
}

// listPage describes one entity list: its columns, searchable text, enum
// field and the optional days-to-expiry used by the range filter.
type listPage[T any] struct {
	title       string
	description string
	template    string
	table       datatable.Table[T]
	search      []func(T) string
	estadoLabel string
	estado      func(T) string
	catalog     format.Catalog
	order       []string
	rangeLabel  string
	expiry      func(T) (int, bool)
	load        func(ctx context.Context) (habilitacion.Listing[T], error)
}

func (p listPage[T]) predicates(f ListFilters) []datatable.Predicate[T] {
	preds := []datatable.Predicate[T]{datatable.Contains(f.Search, p.search...)}
	if p.estado != nil {
		preds = append(preds, datatable.Equals(f.Estado, p.estado))
	}
	if p.expiry != nil {
		preds = append(preds, datatable.IntRange(f.MinDays, f.MaxDays, p.expiry))
	}
	return preds
}

func serveList[T any](h *Handler, w http.ResponseWriter, r *http.Request, page listPage[T]) {
	filters, err := parseListFilters(r.URL.Query())
	if err != nil {
		var fErr filterError
		if errors.As(err, &fErr) {
			http.Error(w, "Parámetro inválido: "+fErr.field, http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	listing, err := page.load(ctx)
	if err != nil {
		h.fail(w, r, fmt.Sprintf("load %s", page.title), err)
		return
	}
	state := datatable.ParseState(r.URL.Query(), datatable.DefaultPageSize)
	rows, err := page.table.Apply(ctx, listing.Rows, state, page.predicates(filters)...)
	if err != nil {
		h.fail(w, r, "paginate "+page.title, err)
		return
	}
	vm := ListViewModel{
		Heading:     page.title,
		Description: page.description,
		Filters:     filters,
		EstadoLabel: page.estadoLabel,
		Table:       datatable.Render(page.table, rows, state, r.URL.Path, filters.Values()),
		Warnings:    listing.Warnings,
	}
	if page.estado != nil {
		vm.Estados = options(page.catalog, page.order, filters.Estado)
	}
	if page.expiry != nil {
		vm.RangeLabel = page.rangeLabel
	}
	tpl := page.template
	if tpl == "" {
		tpl = "pages/habilitacion/list.html"
	}
	h.render(w, r, http.StatusOK, page.title, tpl, vm)
}

func badgeCell(b format.Badge) datatable.Cell {
	return datatable.Cell{Badge: &b}
}

func expiryCell(e habilitacion.Expiry) datatable.Cell {
	if !e.Known {
		return badgeCell(e.Badge)
	}
	b := e.Badge
	days := e.Days
	if days < 0 {
		days = -days
	}
	b.Label = fmt.Sprintf("%s (%d d)", b.Label, days)
	return datatable.Cell{Badge: &b}
}

func expiryDays(e habilitacion.Expiry) (int, bool) { return e.Days, e.Known }

func (h *Handler) handlePrestadores(w http.ResponseWriter, r *http.Request) {
	type row = habilitacion.PrestadorRow
	serveList(h, w, r, listPage[row]{
		title:       "Prestadores",
		description: "Prestadores de servicios de salud y vigencia de su habilitación.",
		table: datatable.Table[row]{Columns: []datatable.Column[row]{
			{Key: "nombre", Label: "Nombre", Sortable: true, Value: func(p row) any { return p.Nombre }},
			{Key: "nit", Label: "NIT", Sortable: true, Value: func(p row) any { return p.NIT }},
			{Key: "codigo", Label: "Código habilitación", Sortable: true, Value: func(p row) any { return p.CodigoHabilitacion }},
			{Key: "tipo", Label: "Tipo", Sortable: true, Value: func(p row) any { return p.TipoPrestador }},
			{Key: "municipio", Label: "Municipio", Sortable: true, Value: func(p row) any { return p.Municipio }},
			{Key: "departamento", Label: "Departamento", Sortable: true, Value: func(p row) any { return p.Departamento }},
			{Key: "estado", Label: "Estado", Sortable: true, Value: func(p row) any { return p.EstadoBadge.Label }, Cell: func(p row) datatable.Cell { return badgeCell(p.EstadoBadge) }},
			{Key: "vencimiento", Label: "Vencimiento", Sortable: true, Value: func(p row) any { return p.FechaVencimiento }},
			{Key: "vigencia", Label: "Vigencia", Sortable: true, Value: func(p row) any { return daysValue(p.Expiry) }, Cell: func(p row) datatable.Cell { return expiryCell(p.Expiry) }},
			{Key: "email", Label: "Correo", Value: func(p row) any { return p.Email }},
		}},
		search:      []func(row) string{func(p row) string { return p.Nombre }, func(p row) string { return p.NIT }, func(p row) string { return p.CodigoHabilitacion }, func(p row) string { return p.Municipio }},
		estadoLabel: "Estado de habilitación",
		estado:      func(p row) string { return p.Estado },
		catalog:     habilitacion.EstadoHabilitacion,
		order:       habilitacion.OrdenHabilitacion,
		rangeLabel:  "Días para el vencimiento",
		expiry:      func(p row) (int, bool) { return expiryDays(p.Expiry) },
		load:        h.service.Prestadores,
	})
}

func (h *Handler) handleServicios(w http.ResponseWriter, r *http.Request) {
	type row = habilitacion.ServicioRow
	serveList(h, w, r, listPage[row]{
		title:       "Servicios habilitados",
		description: "Servicios ofertados por sede.",
		table: datatable.Table[row]{Columns: []datatable.Column[row]{
			{Key: "codigo", Label: "Código", Sortable: true, Value: func(s row) any { return s.CodigoServicio }},
			{Key: "nombre", Label: "Servicio", Sortable: true, Value: func(s row) any { return s.NombreServicio }},
			{Key: "prestador", Label: "Prestador", Sortable: true, Value: func(s row) any { return s.Prestador }},
			{Key: "sede", Label: "Sede", Sortable: true, Value: func(s row) any { return s.Sede }},
			{Key: "modalidad", Label: "Modalidad", Sortable: true, Value: func(s row) any { return s.Modalidad }},
			{Key: "complejidad", Label: "Complejidad", Sortable: true, Value: func(s row) any { return s.Complejidad }},
			{Key: "estado", Label: "Estado", Sortable: true, Value: func(s row) any { return s.EstadoBadge.Label }, Cell: func(s row) datatable.Cell { return badgeCell(s.EstadoBadge) }},
			{Key: "vencimiento", Label: "Vencimiento", Sortable: true, Value: func(s row) any { return s.FechaVencimiento }},
			{Key: "vigencia", Label: "Vigencia", Sortable: true, Value: func(s row) any { return daysValue(s.Expiry) }, Cell: func(s row) datatable.Cell { return expiryCell(s.Expiry) }},
		}},
		search:      []func(row) string{func(s row) string { return s.NombreServicio }, func(s row) string { return s.CodigoServicio }, func(s row) string { return s.Prestador }, func(s row) string { return s.Sede }},
		estadoLabel: "Estado de habilitación",
		estado:      func(s row) string { return s.Estado },
		catalog:     habilitacion.EstadoHabilitacion,
		order:       habilitacion.OrdenHabilitacion,
		rangeLabel:  "Días para el vencimiento",
		expiry:      func(s row) (int, bool) { return expiryDays(s.Expiry) },
		load:        h.service.Servicios,
	})
}

func (h *Handler) handleAutoevaluaciones(w http.ResponseWriter, r *http.Request) {
	type row = habilitacion.AutoevaluacionRow
	serveList(h, w, r, listPage[row]{
		title:       "Autoevaluaciones",
		description: "Ciclos de autoevaluación por prestador.",
		table: datatable.Table[row]{Columns: []datatable.Column[row]{
			{Key: "id", Label: "Ciclo", Sortable: true, Value: func(a row) any { return a.ID }, Cell: func(a row) datatable.Cell {
				return datatable.Cell{Text: fmt.Sprintf("%d-%d", a.Periodo, a.Version), Href: fmt.Sprintf("/habilitacion/autoevaluaciones/%d", a.ID)}
			}},
			{Key: "prestador", Label: "Prestador", Sortable: true, Value: func(a row) any { return a.Prestador }},
			{Key: "periodo", Label: "Periodo", Sortable: true, Value: func(a row) any { return a.Periodo }},
			{Key: "version", Label: "Versión", Sortable: true, Value: func(a row) any { return a.Version }},
			{Key: "estado", Label: "Estado", Sortable: true, Value: func(a row) any { return a.EstadoBadge.Label }, Cell: func(a row) datatable.Cell { return badgeCell(a.EstadoBadge) }},
			{Key: "responsable", Label: "Responsable", Sortable: true, Value: func(a row) any { return a.Responsable }},
			{Key: "inicio", Label: "Inicio", Sortable: true, Value: func(a row) any { return a.FechaInicio }},
			{Key: "limite", Label: "Fecha límite", Sortable: true, Value: func(a row) any { return a.FechaLimite }},
			{Key: "plazo", Label: "Plazo", Sortable: true, Value: func(a row) any { return daysValue(a.Expiry) }, Cell: func(a row) datatable.Cell { return expiryCell(a.Expiry) }},
		}},
		search:      []func(row) string{func(a row) string { return a.Prestador }, func(a row) string { return a.Responsable }, func(a row) string { return strconv.Itoa(a.Periodo) }},
		estadoLabel: "Estado",
		estado:      func(a row) string { return a.Estado },
		catalog:     habilitacion.EstadoAutoevaluacion,
		order:       habilitacion.OrdenAutoevaluacion,
		rangeLabel:  "Días para la fecha límite",
		expiry:      func(a row) (int, bool) { return expiryDays(a.Expiry) },
		load:        h.service.Autoevaluaciones,
	})
}

func (h *Handler) handleCumplimientos(w http.ResponseWriter, r *http.Request) {
	type row = habilitacion.CumplimientoRow
	serveList(h, w, r, listPage[row]{
		title:       "Cumplimiento de criterios",
		description: "Verificación de criterios por servicio.",
		table: datatable.Table[row]{Columns: []datatable.Column[row]{
			{Key: "servicio", Label: "Servicio", Sortable: true, Value: func(c row) any { return c.Servicio }},
			{Key: "criterio", Label: "Criterio", Sortable: true, Value: func(c row) any { return c.Criterio }},
			{Key: "cumple", Label: "Resultado", Sortable: true, Value: func(c row) any { return c.CumpleBadge.Label }, Cell: func(c row) datatable.Cell { return badgeCell(c.CumpleBadge) }},
			{Key: "verificacion", Label: "Verificación", Sortable: true, Value: func(c row) any { return c.FechaVerificacion }},
			{Key: "vencimiento", Label: "Vencimiento", Sortable: true, Value: func(c row) any { return c.FechaVencimiento }},
			{Key: "vigencia", Label: "Vigencia", Sortable: true, Value: func(c row) any { return daysValue(c.Expiry) }, Cell: func(c row) datatable.Cell { return expiryCell(c.Expiry) }},
			{Key: "responsable", Label: "Responsable", Sortable: true, Value: func(c row) any { return c.Responsable }},
			{Key: "observaciones", Label: "Observaciones", Value: func(c row) any { return c.Observaciones }},
		}},
		search:      []func(row) string{func(c row) string { return c.Servicio }, func(c row) string { return c.Criterio }, func(c row) string { return c.Responsable }},
		estadoLabel: "Resultado",
		estado:      func(c row) string { return c.Cumple },
		catalog:     habilitacion.EstadoCumplimiento,
		order:       habilitacion.OrdenCumplimiento,
		rangeLabel:  "Días para el vencimiento",
		expiry:      func(c row) (int, bool) { return expiryDays(c.Expiry) },
		load:        h.service.Cumplimientos,
	})
}

func (h *Handler) handlePlanes(w http.ResponseWriter, r *http.Request) {
	type row = habilitacion.PlanRow
	serveList(h, w, r, listPage[row]{
		title:       "Planes de mejora",
		description: "Un plan abierto con fecha límite vencida se muestra como vencido.",
		table: datatable.Table[row]{Columns: []datatable.Column[row]{
			{Key: "descripcion", Label: "Descripción", Sortable: true, Value: func(p row) any { return p.Descripcion }},
			{Key: "accion", Label: "Acción", Value: func(p row) any { return p.Accion }},
			{Key: "responsable", Label: "Responsable", Sortable: true, Value: func(p row) any { return p.Responsable }},
			{Key: "estado", Label: "Estado", Sortable: true, Value: func(p row) any { return p.EstadoBadge.Label }, Cell: func(p row) datatable.Cell { return badgeCell(p.EstadoBadge) }},
			{Key: "avance", Label: "Avance", Sortable: true, Value: func(p row) any { return p.Avance }, Cell: func(p row) datatable.Cell {
				if text := p.AvanceText(); text != "" {
					return datatable.Cell{Text: text + "%"}
				}
				return datatable.Cell{Text: datatable.EmptyText}
			}},
			{Key: "limite", Label: "Fecha límite", Sortable: true, Value: func(p row) any { return p.FechaLimite }},
			{Key: "plazo", Label: "Plazo", Sortable: true, Value: func(p row) any { return daysValue(p.Expiry) }, Cell: func(p row) datatable.Cell { return expiryCell(p.Expiry) }},
			{Key: "autoevaluacion", Label: "Autoevaluación", Value: func(p row) any { return autoevaluacionID(p.PlanMejora) }, Cell: func(p row) datatable.Cell {
				id := autoevaluacionID(p.PlanMejora)
				if id == 0 {
					return datatable.Cell{Text: datatable.EmptyText}
				}
				return datatable.Cell{Text: fmt.Sprintf("#%d", id), Href: fmt.Sprintf("/habilitacion/autoevaluaciones/%d", id)}
			}},
		}},
		search:      []func(row) string{func(p row) string { return p.Descripcion }, func(p row) string { return p.Accion }, func(p row) string { return p.Responsable }},
		estadoLabel: "Estado",
		estado:      func(p row) string { return p.EstadoEfectivo },
		catalog:     habilitacion.EstadoPlan,
		order:       habilitacion.OrdenPlan,
		rangeLabel:  "Días para la fecha límite",
		expiry:      func(p row) (int, bool) { return expiryDays(p.Expiry) },
		load:        h.service.Planes,
	})
}

func (h *Handler) handleHallazgos(w http.ResponseWriter, r *http.Request) {
	type row = habilitacion.HallazgoRow
	serveList(h, w, r, listPage[row]{
		title:       "Hallazgos",
		description: "Hallazgos de auditoría y autoevaluación.",
		table: datatable.Table[row]{Columns: []datatable.Column[row]{
			{Key: "descripcion", Label: "Descripción", Sortable: true, Value: func(x row) any { return x.Descripcion }},
			{Key: "criterio", Label: "Criterio", Sortable: true, Value: func(x row) any { return x.Criterio }},
			{Key: "tipo", Label: "Tipo", Sortable: true, Value: func(x row) any { return x.TipoBadge.Label }, Cell: func(x row) datatable.Cell { return badgeCell(x.TipoBadge) }},
			{Key: "severidad", Label: "Severidad", Sortable: true, Value: func(x row) any { return severityRank(x.Severidad) }, Cell: func(x row) datatable.Cell { return badgeCell(x.SeveridadBadge) }},
			{Key: "estado", Label: "Estado", Sortable: true, Value: func(x row) any { return x.EstadoBadge.Label }, Cell: func(x row) datatable.Cell { return badgeCell(x.EstadoBadge) }},
			{Key: "identificacion", Label: "Identificado", Sortable: true, Value: func(x row) any { return x.FechaIdentificacion }},
			{Key: "cierre", Label: "Cierre", Sortable: true, Value: func(x row) any { return x.FechaCierre }},
		}},
		search:      []func(row) string{func(x row) string { return x.Descripcion }, func(x row) string { return x.Criterio }},
		estadoLabel: "Estado",
		estado:      func(x row) string { return x.Estado },
		catalog:     habilitacion.EstadoHallazgo,
		order:       habilitacion.OrdenEstadoHallazgo,
		load:        h.service.Hallazgos,
	})
}

// daysValue sorts rows without a date last.
func daysValue(e habilitacion.Expiry) any {
	if !e.Known {
		return nil
	}
	return e.Days
}

func severityRank(code string) any {
	for i, c := range habilitacion.OrdenSeveridad {
		if strings.EqualFold(c, code) {
			return i
		}
	}
	return nil
}

func autoevaluacionID(p habilitacion.PlanMejora) int64 {
	if p.Autoevaluacion.Embedded != nil {
		return p.Autoevaluacion.Embedded.ID
	}
	return p.Autoevaluacion.ID
}
