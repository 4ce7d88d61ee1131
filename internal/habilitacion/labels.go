package habilitacion

import "github.com/habilita/habilita/internal/format"

// Habilitación states of prestadores and services.
const (
	HabilitacionHabilitado   = "HABILITADO"
	HabilitacionEnProceso    = "EN_PROCESO"
	HabilitacionSuspendido   = "SUSPENDIDO"
	HabilitacionNoHabilitado = "NO_HABILITADO"
	HabilitacionCancelado    = "CANCELADO"
)

// Autoevaluación states.
const (
	AutoevaluacionBorrador   = "BORRADOR"
	AutoevaluacionEnCurso    = "EN_CURSO"
	AutoevaluacionCompletada = "COMPLETADA"
	AutoevaluacionRevisada   = "REVISADA"
	AutoevaluacionValidada   = "VALIDADA"
)

// Compliance states shared by evaluations and cumplimientos.
const (
	Cumple       = "CUMPLE"
	NoCumple     = "NO_CUMPLE"
	Parcialmente = "PARCIALMENTE"
	NoAplica     = "NO_APLICA"
)

// Plan de mejora states.
const (
	PlanPendiente  = "PENDIENTE"
	PlanEnCurso    = "EN_CURSO"
	PlanCompletado = "COMPLETADO"
	PlanVencido    = "VENCIDO"
)

// Badge catalogs per enumeration.
var (
	EstadoHabilitacion = format.Catalog{
		HabilitacionHabilitado:   {Label: "Habilitado", Color: "success"},
		HabilitacionEnProceso:    {Label: "En proceso", Color: "info"},
		HabilitacionSuspendido:   {Label: "Suspendido", Color: "warning"},
		HabilitacionNoHabilitado: {Label: "No habilitado", Color: "danger"},
		HabilitacionCancelado:    {Label: "Cancelado", Color: "dark"},
	}

	EstadoAutoevaluacion = format.Catalog{
		AutoevaluacionBorrador:   {Label: "Borrador", Color: "secondary"},
		AutoevaluacionEnCurso:    {Label: "En curso", Color: "info"},
		AutoevaluacionCompletada: {Label: "Completada", Color: "primary"},
		AutoevaluacionRevisada:   {Label: "Revisada", Color: "warning"},
		AutoevaluacionValidada:   {Label: "Validada", Color: "success"},
	}

	EstadoCumplimiento = format.Catalog{
		Cumple:       {Label: "Cumple", Color: "success"},
		NoCumple:     {Label: "No cumple", Color: "danger"},
		Parcialmente: {Label: "Parcialmente", Color: "warning"},
		NoAplica:     {Label: "No aplica", Color: "secondary"},
	}

	EstadoPlan = format.Catalog{
		PlanPendiente:  {Label: "Pendiente", Color: "secondary"},
		PlanEnCurso:    {Label: "En curso", Color: "info"},
		PlanCompletado: {Label: "Completado", Color: "success"},
		PlanVencido:    {Label: "Vencido", Color: "danger"},
	}

	TipoHallazgo = format.Catalog{
		"FORTALEZA":          {Label: "Fortaleza", Color: "success"},
		"OPORTUNIDAD_MEJORA": {Label: "Oportunidad de mejora", Color: "info"},
		"NO_CONFORMIDAD":     {Label: "No conformidad", Color: "danger"},
		"OBSERVACION":        {Label: "Observación", Color: "secondary"},
	}

	SeveridadHallazgo = format.Catalog{
		"BAJA":    {Label: "Baja", Color: "success"},
		"MEDIA":   {Label: "Media", Color: "warning"},
		"ALTA":    {Label: "Alta", Color: "danger"},
		"CRITICA": {Label: "Crítica", Color: "dark"},
	}

	EstadoHallazgo = format.Catalog{
		"ABIERTO":    {Label: "Abierto", Color: "danger"},
		"EN_PROCESO": {Label: "En proceso", Color: "warning"},
		"CERRADO":    {Label: "Cerrado", Color: "success"},
	}
)

// Display orders for filter select boxes.
var (
	OrdenHabilitacion   = []string{HabilitacionHabilitado, HabilitacionEnProceso, HabilitacionSuspendido, HabilitacionNoHabilitado, HabilitacionCancelado}
	OrdenAutoevaluacion = []string{AutoevaluacionBorrador, AutoevaluacionEnCurso, AutoevaluacionCompletada, AutoevaluacionRevisada, AutoevaluacionValidada}
	OrdenCumplimiento   = []string{Cumple, NoCumple, Parcialmente, NoAplica}
	OrdenPlan           = []string{PlanPendiente, PlanEnCurso, PlanCompletado, PlanVencido}
	OrdenTipoHallazgo   = []string{"FORTALEZA", "OPORTUNIDAD_MEJORA", "NO_CONFORMIDAD", "OBSERVACION"}
	OrdenSeveridad      = []string{"BAJA", "MEDIA", "ALTA", "CRITICA"}
	OrdenEstadoHallazgo = []string{"ABIERTO", "EN_PROCESO", "CERRADO"}
)
