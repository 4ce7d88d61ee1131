// Package habilitacion covers provider licensing: prestadores and their
// services, self-assessment cycles, compliance records, improvement plans and
// audit findings. Entities are read from the backend on every request.
package habilitacion

import (
	"strconv"
	"time"

	"github.com/habilita/habilita/internal/format"
	"github.com/habilita/habilita/internal/payload"
)

// Placeholders for unresolved related records.
const (
	UnknownPrestador = "Sin prestador"
	UnknownServicio  = "Sin servicio"
	UnknownCriterio  = "Sin criterio"
	UnknownSede      = "Sin sede"
)

// Prestador is a licensed healthcare provider.
type Prestador struct {
	ID                 int64        `json:"id"`
	Nombre             string       `json:"nombre"`
	NIT                string       `json:"nit"`
	CodigoHabilitacion string       `json:"codigo_habilitacion"`
	TipoPrestador      string       `json:"tipo_prestador"`
	Municipio          string       `json:"municipio"`
	Departamento       string       `json:"departamento"`
	Estado             string       `json:"estado_habilitacion"`
	FechaHabilitacion  payload.Date `json:"fecha_habilitacion"`
	FechaVencimiento   payload.Date `json:"fecha_vencimiento"`
	Email              string       `json:"email"`
	Telefono           string       `json:"telefono"`
}

// Sede is the site a service is offered at.
type Sede struct {
	ID     int64  `json:"id"`
	Nombre string `json:"nombre"`
}

// ServicioSede is a licensed service at a site.
type ServicioSede struct {
	ID                int64                  `json:"id"`
	Prestador         payload.Ref[Prestador] `json:"prestador"`
	Sede              payload.Ref[Sede]      `json:"sede"`
	CodigoServicio    string                 `json:"codigo_servicio"`
	NombreServicio    string                 `json:"nombre_servicio"`
	Modalidad         string                 `json:"modalidad"`
	Complejidad       string                 `json:"complejidad"`
	Estado            string                 `json:"estado_habilitacion"`
	FechaHabilitacion payload.Date           `json:"fecha_habilitacion"`
	FechaVencimiento  payload.Date           `json:"fecha_vencimiento"`

	PrestadorNombre string `json:"prestador_nombre"`
	SedeNombre      string `json:"sede_nombre"`
}

// Autoevaluacion is a self-assessment cycle of a prestador.
type Autoevaluacion struct {
	ID              int64                  `json:"id"`
	Prestador       payload.Ref[Prestador] `json:"prestador"`
	Periodo         int                    `json:"periodo"`
	Version         int                    `json:"version"`
	Estado          string                 `json:"estado"`
	FechaInicio     payload.Date           `json:"fecha_inicio"`
	FechaLimite     payload.Date           `json:"fecha_limite"`
	FechaCompletada payload.Date           `json:"fecha_completada"`
	Responsable     string                 `json:"responsable"`
	Observaciones   string                 `json:"observaciones"`

	PrestadorNombre string `json:"prestador_nombre"`
}

// Criterio is a regulatory criterion.
type Criterio struct {
	ID          int64  `json:"id"`
	Codigo      string `json:"codigo"`
	Nombre      string `json:"nombre"`
	Estandar    string `json:"estandar"`
	Descripcion string `json:"descripcion"`
}

// Evaluacion is the outcome of one criterion within an autoevaluación.
type Evaluacion struct {
	ID              int64                 `json:"id"`
	Autoevaluacion  int64                 `json:"autoevaluacion"`
	Criterio        payload.Ref[Criterio] `json:"criterio"`
	Cumple          string                `json:"cumple"`
	Observaciones   string                `json:"observaciones"`
	Evidencia       string                `json:"evidencia"`
	FechaEvaluacion payload.Date          `json:"fecha_evaluacion"`

	CriterioCodigo string `json:"criterio_codigo"`
	CriterioNombre string `json:"criterio_nombre"`
}

// Cumplimiento records whether a service meets a criterion.
type Cumplimiento struct {
	ID                int64                     `json:"id"`
	ServicioSede      payload.Ref[ServicioSede] `json:"servicio_sede"`
	Criterio          payload.Ref[Criterio]     `json:"criterio"`
	Cumple            string                    `json:"cumple"`
	FechaVerificacion payload.Date              `json:"fecha_verificacion"`
	FechaVencimiento  payload.Date              `json:"fecha_vencimiento"`
	Responsable       string                    `json:"responsable"`
	Observaciones     string                    `json:"observaciones"`

	ServicioNombre string `json:"servicio_nombre"`
	CriterioNombre string `json:"criterio_nombre"`
}

// PlanMejora is an improvement plan opened after an assessment or finding.
type PlanMejora struct {
	ID             int64                       `json:"id"`
	Autoevaluacion payload.Ref[Autoevaluacion] `json:"autoevaluacion"`
	Hallazgo       payload.Ref[Hallazgo]       `json:"hallazgo"`
	Descripcion    string                      `json:"descripcion"`
	Accion         string                      `json:"accion"`
	Responsable    string                      `json:"responsable"`
	FechaInicio    payload.Date                `json:"fecha_inicio"`
	FechaLimite    payload.Date                `json:"fecha_limite"`
	FechaCierre    payload.Date                `json:"fecha_cierre"`
	Estado         string                      `json:"estado"`
	Avance         payload.Number              `json:"avance"`
}

// EffectiveEstado is the state shown to users: an open plan past its
// deadline reads as VENCIDO. The stored state is not modified.
func (p PlanMejora) EffectiveEstado(now time.Time) string {
	if p.Estado == PlanCompletado || p.Estado == PlanVencido {
		return p.Estado
	}
	if days, ok := format.DaysUntil(p.FechaLimite, now); ok && days < 0 {
		return PlanVencido
	}
	return p.Estado
}

// AvanceText is the progress percentage without trailing zeros, or "" when
// the backend sent none.
func (p PlanMejora) AvanceText() string {
	v, ok := p.Avance.Float64()
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Hallazgo is an audit finding.
type Hallazgo struct {
	ID                  int64                       `json:"id"`
	Autoevaluacion      payload.Ref[Autoevaluacion] `json:"autoevaluacion"`
	Criterio            payload.Ref[Criterio]       `json:"criterio"`
	Tipo                string                      `json:"tipo"`
	Severidad           string                      `json:"severidad"`
	Estado              string                      `json:"estado"`
	Descripcion         string                      `json:"descripcion"`
	FechaIdentificacion payload.Date                `json:"fecha_identificacion"`
	FechaCierre         payload.Date                `json:"fecha_cierre"`

	CriterioNombre string `json:"criterio_nombre"`
}

// EstadoUpdate is the body of an autoevaluación state change.
type EstadoUpdate struct {
	Estado        string `json:"estado" validate:"required,oneof=BORRADOR EN_CURSO COMPLETADA REVISADA VALIDADA"`
	Observaciones string `json:"observaciones,omitempty" validate:"max=2000"`
}

// PlanUpdate is the body of an improvement plan update.
type PlanUpdate struct {
	Estado        string   `json:"estado,omitempty" validate:"omitempty,oneof=PENDIENTE EN_CURSO COMPLETADO VENCIDO"`
	Avance        *float64 `json:"avance,omitempty" validate:"omitempty,gte=0,lte=100"`
	FechaLimite   string   `json:"fecha_limite,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Observaciones string   `json:"observaciones,omitempty" validate:"max=2000"`
}
