package habilitacion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/habilita/habilita/internal/audit"
	"github.com/habilita/habilita/internal/format"
	"github.com/habilita/habilita/internal/payload"
	"github.com/habilita/habilita/internal/platform/httpx"
	"github.com/habilita/habilita/internal/shared"
)

// Backend is the subset of the REST client used by this package.
type Backend interface {
	ListPrestadores(ctx context.Context) ([]Prestador, error)
	ListServicios(ctx context.Context) ([]ServicioSede, error)
	ListAutoevaluaciones(ctx context.Context) ([]Autoevaluacion, error)
	GetAutoevaluacion(ctx context.Context, id int64) (Autoevaluacion, error)
	ListCriterios(ctx context.Context) ([]Criterio, error)
	ListEvaluaciones(ctx context.Context, autoevaluacionID int64) ([]Evaluacion, error)
	ListCumplimientos(ctx context.Context) ([]Cumplimiento, error)
	ListPlanes(ctx context.Context) ([]PlanMejora, error)
	ListHallazgos(ctx context.Context, autoevaluacionID int64) ([]Hallazgo, error)
	UpdateAutoevaluacionEstado(ctx context.Context, id int64, in EstadoUpdate) (Autoevaluacion, error)
	UpdatePlan(ctx context.Context, id int64, in PlanUpdate) (PlanMejora, error)
}

// Warnings shown when a supporting list cannot be loaded.
const (
	WarnPrestadores  = "No se pudo cargar el listado de prestadores."
	WarnServicios    = "No se pudo cargar el listado de servicios."
	WarnCriterios    = "No se pudo cargar el catálogo de criterios."
	WarnEvaluaciones = "No se pudieron cargar las evaluaciones."
	WarnHallazgos    = "No se pudieron cargar los hallazgos."
	WarnPlanes       = "No se pudieron cargar los planes de mejora."
	WarnAutoevals    = "No se pudieron cargar las autoevaluaciones."
)

// ErrInvalidInput wraps validation failures of user submitted forms.
var ErrInvalidInput = fmt.Errorf("habilitacion: %w", httpx.ErrValidation)

// Auditor records state changes submitted through the pages.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service assembles list and detail views from backend data.
type Service struct {
	backend  Backend
	audit    Auditor
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs the service.
func NewService(backend Backend, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, logger: logger, validate: validator.New(), now: time.Now}
}

// WithAuditor enables audit entries for state changes.
func (s *Service) WithAuditor(a Auditor) *Service {
	s.audit = a
	return s
}

// WithNow overrides the clock for tests.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// Now returns the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// Listing is a list page payload plus partial-failure warnings.
type Listing[T any] struct {
	Rows     []T
	Warnings []string
}

// loader runs fetches in parallel. Required fetches fail the whole load;
// optional ones log and record a warning. Optional closures assign their
// target only on success, so a failed fetch leaves it empty.
type loader struct {
	g        *errgroup.Group
	ctx      context.Context
	logger   *slog.Logger
	mu       sync.Mutex
	warnings []string
}

func newLoader(ctx context.Context, logger *slog.Logger) *loader {
	g, gctx := errgroup.WithContext(ctx)
	return &loader{g: g, ctx: gctx, logger: logger}
}

func (l *loader) required(fn func(ctx context.Context) error) {
	l.g.Go(func() error { return fn(l.ctx) })
}

func (l *loader) optional(op, warning string, fn func(ctx context.Context) error) {
	l.g.Go(func() error {
		if err := fn(l.ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			l.logger.Warn(op, slog.Any("error", err))
			l.mu.Lock()
			l.warnings = append(l.warnings, warning)
			l.mu.Unlock()
		}
		return nil
	})
}

func (l *loader) wait() ([]string, error) {
	err := l.g.Wait()
	return l.warnings, err
}

// Expiry carries the days-to-expiry arithmetic used by list filters.
type Expiry struct {
	Days  int
	Known bool
	Badge format.Badge
}

func expiryOf(d payload.Date, now time.Time) Expiry {
	days, ok := format.DaysUntil(d, now)
	return Expiry{Days: days, Known: ok, Badge: format.ExpiryBadge(days, ok)}
}

// PrestadorRow is a prestador with display fields resolved.
type PrestadorRow struct {
	Prestador
	EstadoBadge format.Badge
	Expiry      Expiry
}

// Prestadores lists providers.
func (s *Service) Prestadores(ctx context.Context) (Listing[PrestadorRow], error) {
	items, err := s.backend.ListPrestadores(ctx)
	if err != nil {
		return Listing[PrestadorRow]{}, err
	}
	now := s.now()
	rows := make([]PrestadorRow, 0, len(items))
	for _, p := range items {
		rows = append(rows, PrestadorRow{Prestador: p, EstadoBadge: EstadoHabilitacion.Badge(p.Estado), Expiry: expiryOf(p.FechaVencimiento, now)})
	}
	return Listing[PrestadorRow]{Rows: rows}, nil
}

// ServicioRow is a service with its prestador and sede resolved.
type ServicioRow struct {
	ServicioSede
	Prestador   string
	Sede        string
	EstadoBadge format.Badge
	Expiry      Expiry
}

// Servicios lists services, resolving prestador names from the provider list.
func (s *Service) Servicios(ctx context.Context) (Listing[ServicioRow], error) {
	var (
		items       []ServicioSede
		prestadores []Prestador
	)
	l := newLoader(ctx, s.logger)
	l.required(func(ctx context.Context) (err error) {
		items, err = s.backend.ListServicios(ctx)
		return err
	})
	l.optional("load prestadores", WarnPrestadores, func(ctx context.Context) error {
		fetched, err := s.backend.ListPrestadores(ctx)
		if err != nil {
			return err
		}
		prestadores = fetched
		return nil
	})
	warnings, err := l.wait()
	if err != nil {
		return Listing[ServicioRow]{}, err
	}
	lookup := indexPrestadores(prestadores)
	now := s.now()
	rows := make([]ServicioRow, 0, len(items))
	for _, it := range items {
		rows = append(rows, ServicioRow{
			ServicioSede: it,
			Prestador:    format.RefText(it.Prestador, it.PrestadorNombre, lookup, func(p Prestador) string { return p.Nombre }, UnknownPrestador),
			Sede:         format.RefText(it.Sede, it.SedeNombre, nil, func(v Sede) string { return v.Nombre }, UnknownSede),
			EstadoBadge:  EstadoHabilitacion.Badge(it.Estado),
			Expiry:       expiryOf(it.FechaVencimiento, now),
		})
	}
	return Listing[ServicioRow]{Rows: rows, Warnings: warnings}, nil
}

// AutoevaluacionRow is an autoevaluación with display fields resolved.
type AutoevaluacionRow struct {
	Autoevaluacion
	Prestador   string
	EstadoBadge format.Badge
	Expiry      Expiry
	Next        []Transition
}

func (s *Service) autoevaluacionRow(a Autoevaluacion, lookup map[int64]Prestador, now time.Time) AutoevaluacionRow {
	return AutoevaluacionRow{
		Autoevaluacion: a,
		Prestador:      format.RefText(a.Prestador, a.PrestadorNombre, lookup, func(p Prestador) string { return p.Nombre }, UnknownPrestador),
		EstadoBadge:    EstadoAutoevaluacion.Badge(a.Estado),
		Expiry:         expiryOf(a.FechaLimite, now),
		Next:           NextAutoevaluacion(a.Estado),
	}
}

// Autoevaluaciones lists self-assessment cycles.
func (s *Service) Autoevaluaciones(ctx context.Context) (Listing[AutoevaluacionRow], error) {
	var (
		items       []Autoevaluacion
		prestadores []Prestador
	)
	l := newLoader(ctx, s.logger)
	l.required(func(ctx context.Context) (err error) {
		items, err = s.backend.ListAutoevaluaciones(ctx)
		return err
	})
	l.optional("load prestadores", WarnPrestadores, func(ctx context.Context) error {
		fetched, err := s.backend.ListPrestadores(ctx)
		if err != nil {
			return err
		}
		prestadores = fetched
		return nil
	})
	warnings, err := l.wait()
	if err != nil {
		return Listing[AutoevaluacionRow]{}, err
	}
	lookup := indexPrestadores(prestadores)
	now := s.now()
	rows := make([]AutoevaluacionRow, 0, len(items))
	for _, a := range items {
		rows = append(rows, s.autoevaluacionRow(a, lookup, now))
	}
	return Listing[AutoevaluacionRow]{Rows: rows, Warnings: warnings}, nil
}

// EvaluacionRow is an evaluation with its criterion resolved.
type EvaluacionRow struct {
	Evaluacion
	Codigo      string
	Criterio    string
	Estandar    string
	CumpleBadge format.Badge
}

// AutoevaluacionDetail is the detail page model.
type AutoevaluacionDetail struct {
	Autoevaluacion AutoevaluacionRow
	Evaluaciones   []EvaluacionRow
	Progress       Progress
	Hallazgos      []HallazgoRow
	Planes         []PlanRow
	Warnings       []string
}

// AutoevaluacionDetail loads one autoevaluación with its evaluations,
// findings and plans.
func (s *Service) AutoevaluacionDetail(ctx context.Context, id int64) (AutoevaluacionDetail, error) {
	var (
		auto        Autoevaluacion
		evals       []Evaluacion
		criterios   []Criterio
		hallazgos   []Hallazgo
		planes      []PlanMejora
		prestadores []Prestador
	)
	l := newLoader(ctx, s.logger)
	l.required(func(ctx context.Context) (err error) {
		auto, err = s.backend.GetAutoevaluacion(ctx, id)
		return err
	})
	l.optional("load prestadores", WarnPrestadores, func(ctx context.Context) error {
		fetched, err := s.backend.ListPrestadores(ctx)
		if err != nil {
			return err
		}
		prestadores = fetched
		return nil
	})
	l.optional("load evaluaciones", WarnEvaluaciones, func(ctx context.Context) error {
		fetched, err := s.backend.ListEvaluaciones(ctx, id)
		if err != nil {
			return err
		}
		evals = fetched
		return nil
	})
	l.optional("load criterios", WarnCriterios, func(ctx context.Context) error {
		fetched, err := s.backend.ListCriterios(ctx)
		if err != nil {
			return err
		}
		criterios = fetched
		return nil
	})
	l.optional("load hallazgos", WarnHallazgos, func(ctx context.Context) error {
		fetched, err := s.backend.ListHallazgos(ctx, id)
		if err != nil {
			return err
		}
		hallazgos = fetched
		return nil
	})
	l.optional("load planes", WarnPlanes, func(ctx context.Context) error {
		fetched, err := s.backend.ListPlanes(ctx)
		if err != nil {
			return err
		}
		planes = fetched
		return nil
	})
	warnings, err := l.wait()
	if err != nil {
		return AutoevaluacionDetail{}, err
	}

	now := s.now()
	critLookup := indexCriterios(criterios)
	detail := AutoevaluacionDetail{
		Autoevaluacion: s.autoevaluacionRow(auto, indexPrestadores(prestadores), now),
		Progress:       ComputeProgress(evals),
		Warnings:       warnings,
	}
	for _, e := range evals {
		crit, _ := payload.Resolve(e.Criterio, critLookup)
		detail.Evaluaciones = append(detail.Evaluaciones, EvaluacionRow{
			Evaluacion:  e,
			Codigo:      format.FirstNonEmpty(crit.Codigo, e.CriterioCodigo),
			Criterio:    format.RefText(e.Criterio, e.CriterioNombre, critLookup, func(c Criterio) string { return c.Nombre }, UnknownCriterio),
			Estandar:    crit.Estandar,
			CumpleBadge: EstadoCumplimiento.Badge(e.Cumple),
		})
	}
	for _, h := range hallazgos {
		detail.Hallazgos = append(detail.Hallazgos, hallazgoRow(h, critLookup))
	}
	for _, p := range planes {
		if p.Autoevaluacion.ID == id || (p.Autoevaluacion.Embedded != nil && p.Autoevaluacion.Embedded.ID == id) {
			detail.Planes = append(detail.Planes, planRow(p, now))
		}
	}
	return detail, nil
}

// CumplimientoRow is a compliance record with its service and criterion
// resolved.
type CumplimientoRow struct {
	Cumplimiento
	Servicio    string
	Criterio    string
	CumpleBadge format.Badge
	Expiry      Expiry
}

// Cumplimientos lists compliance records.
func (s *Service) Cumplimientos(ctx context.Context) (Listing[CumplimientoRow], error) {
	var (
		items     []Cumplimiento
		servicios []ServicioSede
		criterios []Criterio
	)
	l := newLoader(ctx, s.logger)
	l.required(func(ctx context.Context) (err error) {
		items, err = s.backend.ListCumplimientos(ctx)
		return err
	})
	l.optional("load servicios", WarnServicios, func(ctx context.Context) error {
		fetched, err := s.backend.ListServicios(ctx)
		if err != nil {
			return err
		}
		servicios = fetched
		return nil
	})
	l.optional("load criterios", WarnCriterios, func(ctx context.Context) error {
		fetched, err := s.backend.ListCriterios(ctx)
		if err != nil {
			return err
		}
		criterios = fetched
		return nil
	})
	warnings, err := l.wait()
	if err != nil {
		return Listing[CumplimientoRow]{}, err
	}
	servLookup := make(map[int64]ServicioSede, len(servicios))
	for _, sv := range servicios {
		servLookup[sv.ID] = sv
	}
	critLookup := indexCriterios(criterios)
	now := s.now()
	rows := make([]CumplimientoRow, 0, len(items))
	for _, c := range items {
		rows = append(rows, CumplimientoRow{
			Cumplimiento: c,
			Servicio:     format.RefText(c.ServicioSede, c.ServicioNombre, servLookup, func(v ServicioSede) string { return v.NombreServicio }, UnknownServicio),
			Criterio:     format.RefText(c.Criterio, c.CriterioNombre, critLookup, func(v Criterio) string { return v.Nombre }, UnknownCriterio),
			CumpleBadge:  EstadoCumplimiento.Badge(c.Cumple),
			Expiry:       expiryOf(c.FechaVencimiento, now),
		})
	}
	return Listing[CumplimientoRow]{Rows: rows, Warnings: warnings}, nil
}

// PlanRow is a plan with its effective state.
type PlanRow struct {
	PlanMejora
	EstadoEfectivo string
	EstadoBadge    format.Badge
	Expiry         Expiry
	Next           []Transition
}

func planRow(p PlanMejora, now time.Time) PlanRow {
	effective := p.EffectiveEstado(now)
	return PlanRow{
		PlanMejora:     p,
		EstadoEfectivo: effective,
		EstadoBadge:    EstadoPlan.Badge(effective),
		Expiry:         expiryOf(p.FechaLimite, now),
		Next:           NextPlan(p.Estado),
	}
}

// Planes lists improvement plans.
func (s *Service) Planes(ctx context.Context) (Listing[PlanRow], error) {
	items, err := s.backend.ListPlanes(ctx)
	if err != nil {
		return Listing[PlanRow]{}, err
	}
	now := s.now()
	rows := make([]PlanRow, 0, len(items))
	for _, p := range items {
		rows = append(rows, planRow(p, now))
	}
	return Listing[PlanRow]{Rows: rows}, nil
}

// HallazgoRow is a finding with its badges resolved.
type HallazgoRow struct {
	Hallazgo
	Criterio       string
	TipoBadge      format.Badge
	SeveridadBadge format.Badge
	EstadoBadge    format.Badge
}

func hallazgoRow(h Hallazgo, critLookup map[int64]Criterio) HallazgoRow {
	return HallazgoRow{
		Hallazgo:       h,
		Criterio:       format.RefText(h.Criterio, h.CriterioNombre, critLookup, func(c Criterio) string { return c.Nombre }, UnknownCriterio),
		TipoBadge:      TipoHallazgo.Badge(h.Tipo),
		SeveridadBadge: SeveridadHallazgo.Badge(h.Severidad),
		EstadoBadge:    EstadoHallazgo.Badge(h.Estado),
	}
}

// Hallazgos lists findings across all autoevaluaciones.
func (s *Service) Hallazgos(ctx context.Context) (Listing[HallazgoRow], error) {
	var (
		items     []Hallazgo
		criterios []Criterio
	)
	l := newLoader(ctx, s.logger)
	l.required(func(ctx context.Context) (err error) {
		items, err = s.backend.ListHallazgos(ctx, 0)
		return err
	})
	l.optional("load criterios", WarnCriterios, func(ctx context.Context) error {
		fetched, err := s.backend.ListCriterios(ctx)
		if err != nil {
			return err
		}
		criterios = fetched
		return nil
	})
	warnings, err := l.wait()
	if err != nil {
		return Listing[HallazgoRow]{}, err
	}
	lookup := indexCriterios(criterios)
	rows := make([]HallazgoRow, 0, len(items))
	for _, h := range items {
		rows = append(rows, hallazgoRow(h, lookup))
	}
	return Listing[HallazgoRow]{Rows: rows, Warnings: warnings}, nil
}

// Overview holds the headline counts of the habilitación home page.
type Overview struct {
	Prestadores       int
	PorEstado         map[string]int
	PorVencer         int
	Vencidos          int
	AutoevalsAbiertas int
	PlanesVencidos    int
	HallazgosAbiertos int
	Warnings          []string
}

// Overview counts providers, open assessments, overdue plans and open
// findings. Each source is optional.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	var (
		prestadores []Prestador
		autoevals   []Autoevaluacion
		planes      []PlanMejora
		hallazgos   []Hallazgo
	)
	l := newLoader(ctx, s.logger)
	l.optional("load prestadores", WarnPrestadores, func(ctx context.Context) error {
		fetched, err := s.backend.ListPrestadores(ctx)
		if err != nil {
			return err
		}
		prestadores = fetched
		return nil
	})
	l.optional("load autoevaluaciones", WarnAutoevals, func(ctx context.Context) error {
		fetched, err := s.backend.ListAutoevaluaciones(ctx)
		if err != nil {
			return err
		}
		autoevals = fetched
		return nil
	})
	l.optional("load planes", WarnPlanes, func(ctx context.Context) error {
		fetched, err := s.backend.ListPlanes(ctx)
		if err != nil {
			return err
		}
		planes = fetched
		return nil
	})
	l.optional("load hallazgos", WarnHallazgos, func(ctx context.Context) error {
		fetched, err := s.backend.ListHallazgos(ctx, 0)
		if err != nil {
			return err
		}
		hallazgos = fetched
		return nil
	})
	warnings, _ := l.wait()
	if err := ctx.Err(); err != nil {
		return Overview{}, err
	}

	now := s.now()
	ov := Overview{Prestadores: len(prestadores), PorEstado: map[string]int{}, Warnings: warnings}
	for _, p := range prestadores {
		ov.PorEstado[strings.ToUpper(p.Estado)]++
		if exp := expiryOf(p.FechaVencimiento, now); exp.Known {
			switch {
			case exp.Days < 0:
				ov.Vencidos++
			case exp.Days <= format.ExpiryWarningDays:
				ov.PorVencer++
			}
		}
	}
	for _, a := range autoevals {
		switch a.Estado {
		case AutoevaluacionBorrador, AutoevaluacionEnCurso:
			ov.AutoevalsAbiertas++
		}
	}
	for _, p := range planes {
		if p.EffectiveEstado(now) == PlanVencido {
			ov.PlanesVencidos++
		}
	}
	for _, h := range hallazgos {
		if !strings.EqualFold(h.Estado, "CERRADO") {
			ov.HallazgosAbiertos++
		}
	}
	return ov, nil
}

// ChangeAutoevaluacionEstado submits a new state. Any known state is accepted;
// the suggested flow is not enforced.
func (s *Service) ChangeAutoevaluacionEstado(ctx context.Context, id int64, in EstadoUpdate) (Autoevaluacion, error) {
	in.Estado = strings.ToUpper(strings.TrimSpace(in.Estado))
	if err := s.validate.Struct(in); err != nil {
		return Autoevaluacion{}, fmt.Errorf("%w: %s", ErrInvalidInput, describe(err))
	}
	updated, err := s.backend.UpdateAutoevaluacionEstado(ctx, id, in)
	if err != nil {
		return Autoevaluacion{}, err
	}
	meta := map[string]any{"estado": in.Estado}
	if in.Observaciones != "" {
		meta["observaciones"] = in.Observaciones
	}
	s.record(ctx, audit.ActionEstadoChange, audit.EntityAutoevaluacion, id, meta)
	return updated, nil
}

// UpdatePlan submits plan changes.
func (s *Service) UpdatePlan(ctx context.Context, id int64, in PlanUpdate) (PlanMejora, error) {
	in.Estado = strings.ToUpper(strings.TrimSpace(in.Estado))
	if err := s.validate.Struct(in); err != nil {
		return PlanMejora{}, fmt.Errorf("%w: %s", ErrInvalidInput, describe(err))
	}
	if in.Estado == "" && in.Avance == nil && in.FechaLimite == "" && in.Observaciones == "" {
		return PlanMejora{}, fmt.Errorf("%w: sin cambios", ErrInvalidInput)
	}
	updated, err := s.backend.UpdatePlan(ctx, id, in)
	if err != nil {
		return PlanMejora{}, err
	}
	meta := map[string]any{}
	if in.Estado != "" {
		meta["estado"] = in.Estado
	}
	if in.Avance != nil {
		meta["avance"] = *in.Avance
	}
	if in.FechaLimite != "" {
		meta["fecha_limite"] = in.FechaLimite
	}
	if in.Observaciones != "" {
		meta["observaciones"] = in.Observaciones
	}
	s.record(ctx, audit.ActionPlanUpdate, audit.EntityPlanMejora, id, meta)
	return updated, nil
}

// record writes an audit entry for the session user. Failures are logged and
// never undo the change already accepted by the backend.
func (s *Service) record(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("habilitacion audit", slog.String("action", action), slog.Int64("id", id), slog.Any("error", err))
	}
}

var fieldNames = map[string]string{
	"Estado":        "estado",
	"Observaciones": "observaciones",
	"Avance":        "avance",
	"FechaLimite":   "fecha límite",
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fieldNames[fe.Field()]
		if name == "" {
			name = fe.Field()
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, name+": requerido")
		case "oneof":
			msgs = append(msgs, name+": valor no permitido")
		default:
			msgs = append(msgs, name+": valor inválido")
		}
	}
	return strings.Join(msgs, "; ")
}

func indexPrestadores(items []Prestador) map[int64]Prestador {
	out := make(map[int64]Prestador, len(items))
	for _, p := range items {
		out[p.ID] = p
	}
	return out
}

func indexCriterios(items []Criterio) map[int64]Criterio {
	out := make(map[int64]Criterio, len(items))
	for _, c := range items {
		out[c.ID] = c
	}
	return out
}
