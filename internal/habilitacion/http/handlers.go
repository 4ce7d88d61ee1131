// Package habilitacionhttp serves the habilitación pages: the overview, one
// list page per entity, the autoevaluación detail and the state forms.
package habilitacionhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/habilita/habilita/internal/backend"
	"github.com/habilita/habilita/internal/habilitacion"
	"github.com/habilita/habilita/internal/platform/httpx"
	"github.com/habilita/habilita/internal/shared"
	"github.com/habilita/habilita/internal/view"
)

const requestTimeout = 20 * time.Second

// Service is the habilitación use-case layer.
type Service interface {
	Overview(ctx context.Context) (habilitacion.Overview, error)
	Prestadores(ctx context.Context) (habilitacion.Listing[habilitacion.PrestadorRow], error)
	Servicios(ctx context.Context) (habilitacion.Listing[habilitacion.ServicioRow], error)
	Autoevaluaciones(ctx context.Context) (habilitacion.Listing[habilitacion.AutoevaluacionRow], error)
	AutoevaluacionDetail(ctx context.Context, id int64) (habilitacion.AutoevaluacionDetail, error)
	Cumplimientos(ctx context.Context) (habilitacion.Listing[habilitacion.CumplimientoRow], error)
	Planes(ctx context.Context) (habilitacion.Listing[habilitacion.PlanRow], error)
	Hallazgos(ctx context.Context) (habilitacion.Listing[habilitacion.HallazgoRow], error)
	ChangeAutoevaluacionEstado(ctx context.Context, id int64, in habilitacion.EstadoUpdate) (habilitacion.Autoevaluacion, error)
	UpdatePlan(ctx context.Context, id int64, in habilitacion.PlanUpdate) (habilitacion.PlanMejora, error)
}

// Handler renders the habilitación pages.
type Handler struct {
	logger    *slog.Logger
	service   Service
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf}
}

// OverviewViewModel is the habilitación home page.
type OverviewViewModel struct {
	Overview habilitacion.Overview
	Estados  []EstadoCount
}

// EstadoCount is one line of the prestadores-by-state breakdown.
type EstadoCount struct {
	Label string
	Color string
	Count int
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	ov, err := h.service.Overview(ctx)
	if err != nil {
		h.fail(w, r, "load overview", err)
		return
	}
	vm := OverviewViewModel{Overview: ov}
	for _, code := range habilitacion.OrdenHabilitacion {
		badge := habilitacion.EstadoHabilitacion.Badge(code)
		vm.Estados = append(vm.Estados, EstadoCount{Label: badge.Label, Color: badge.Color, Count: ov.PorEstado[code]})
	}
	h.render(w, r, http.StatusOK, "Habilitación", "pages/habilitacion/overview.html", vm)
}

// DetailViewModel is the autoevaluación detail page.
type DetailViewModel struct {
	Detail     habilitacion.AutoevaluacionDetail
	Estados    []Option
	PlanStates []Option
	Return     string
}

func (h *Handler) handleAutoevaluacion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	detail, err := h.service.AutoevaluacionDetail(ctx, id)
	if err != nil {
		h.fail(w, r, "load autoevaluacion", err)
		return
	}
	vm := DetailViewModel{
		Detail:     detail,
		Estados:    options(habilitacion.EstadoAutoevaluacion, habilitacion.OrdenAutoevaluacion, detail.Autoevaluacion.Estado),
		PlanStates: options(habilitacion.EstadoPlan, habilitacion.OrdenPlan, ""),
		Return:     r.URL.Path,
	}
	title := fmt.Sprintf("Autoevaluación %d-%d", detail.Autoevaluacion.Periodo, detail.Autoevaluacion.Version)
	h.render(w, r, http.StatusOK, title, "pages/habilitacion/autoevaluacion.html", vm)
}

func (h *Handler) handleChangeEstado(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	in := habilitacion.EstadoUpdate{
		Estado:        r.PostFormValue("estado"),
		Observaciones: strings.TrimSpace(r.PostFormValue("observaciones")),
	}
	back := fmt.Sprintf("/habilitacion/autoevaluaciones/%d", id)
	if _, err := h.service.ChangeAutoevaluacionEstado(ctx, id, in); err != nil {
		h.formFailure(w, r, "change autoevaluacion estado", err, safeReturn(r.PostFormValue("return"), back))
		return
	}
	h.flash(r, "success", "Estado actualizado a "+habilitacion.EstadoAutoevaluacion.Label(strings.ToUpper(in.Estado))+".")
	http.Redirect(w, r, safeReturn(r.PostFormValue("return"), back), http.StatusSeeOther)
}

func (h *Handler) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	back := safeReturn(r.PostFormValue("return"), "/habilitacion/planes")
	in := habilitacion.PlanUpdate{
		Estado:        r.PostFormValue("estado"),
		FechaLimite:   strings.TrimSpace(r.PostFormValue("fecha_limite")),
		Observaciones: strings.TrimSpace(r.PostFormValue("observaciones")),
	}
	if raw := strings.TrimSpace(r.PostFormValue("avance")); raw != "" {
		v, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
		if err != nil {
			h.flash(r, "error", "avance: valor inválido")
			http.Redirect(w, r, back, http.StatusSeeOther)
			return
		}
		in.Avance = &v
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if _, err := h.service.UpdatePlan(ctx, id, in); err != nil {
		h.formFailure(w, r, "update plan", err, back)
		return
	}
	h.flash(r, "success", "Plan de mejora actualizado.")
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// formFailure reports a rejected form submission as a flash and sends the
// user back. Only validation failures echo their detail.
func (h *Handler) formFailure(w http.ResponseWriter, r *http.Request, op string, err error, back string) {
	switch {
	case errors.Is(err, habilitacion.ErrInvalidInput):
		h.flash(r, "error", strings.TrimPrefix(err.Error(), habilitacion.ErrInvalidInput.Error()+": "))
	case errors.Is(err, httpx.ErrUnauthorized):
		h.flash(r, "error", "Su sesión expiró. Ingrese de nuevo.")
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	default:
		h.logError(op, err)
		h.flash(r, "error", backend.Message(err))
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// fail answers a page load that could not complete.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, httpx.ErrUnauthorized):
		h.flash(r, "error", "Su sesión expiró. Ingrese de nuevo.")
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
	case errors.Is(err, httpx.ErrNotFound):
		http.Error(w, "Registro no encontrado.", http.StatusNotFound)
	default:
		h.logError(op, err)
		http.Error(w, backend.Message(err), httpx.StatusOf(err))
	}
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Parámetro inválido: id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// safeReturn only follows local habilitación paths.
func safeReturn(raw, fallback string) string {
	if strings.HasPrefix(raw, "/habilitacion") && !strings.HasPrefix(raw, "//") {
		return raw
	}
	return fallback
}

func (h *Handler) flash(r *http.Request, kind, msg string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: msg})
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, title, name string, data any) {
	sess := shared.SessionFromContext(r.Context())
	var flash *shared.FlashMessage
	csrfToken, user := "", ""
	if sess != nil {
		flash = sess.PopFlash()
		user = sess.User()
		if h.csrf != nil {
			csrfToken, _ = h.csrf.EnsureToken(r.Context(), sess)
		}
	}
	var buf bytes.Buffer
	err := h.templates.Execute(&buf, name, view.TemplateData{
		Title:       title,
		Flash:       flash,
		CSRFToken:   csrfToken,
		CurrentPath: r.URL.Path,
		User:        user,
		Data:        data,
	})
	if err != nil {
		h.logError("render template", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		h.logError("write page", err)
	}
}

func (h *Handler) logError(op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
}

// API

func (h *Handler) handleAPIAutoevaluacion(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	detail, err := h.service.AutoevaluacionDetail(ctx, id)
	if err != nil {
		h.logError("api autoevaluacion", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"autoevaluacion": detail.Autoevaluacion.Autoevaluacion,
		"evaluaciones":   detail.Evaluaciones,
		"progress": map[string]any{
			"total":        detail.Progress.Total,
			"cumple":       detail.Progress.Cumple,
			"noCumple":     detail.Progress.NoCumple,
			"parcialmente": detail.Progress.Parcialmente,
			"noAplica":     detail.Progress.NoAplica,
			"pendientes":   detail.Progress.Pendientes,
			"percentage":   detail.Progress.Percentage,
		},
		"warnings": detail.Warnings,
	})
}

func (h *Handler) handleAPIEstado(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	var in habilitacion.EstadoUpdate
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	updated, err := h.service.ChangeAutoevaluacionEstado(ctx, id, in)
	if err != nil {
		if !errors.Is(err, httpx.ErrValidation) {
			h.logError("api change estado", err)
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

// HandleOverviewForTest exposes the overview handler for tests.
func (h *Handler) HandleOverviewForTest(w http.ResponseWriter, r *http.Request) {
	h.handleOverview(w, r)
}
