package habilitacionhttp

import "github.com/go-chi/chi/v5"

// MountRoutes registers the habilitación pages, forms and JSON endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Route("/habilitacion", func(r chi.Router) {
		r.Get("/", h.handleOverview)
		r.Get("/prestadores", h.handlePrestadores)
		r.Get("/servicios", h.handleServicios)
		r.Get("/autoevaluaciones", h.handleAutoevaluaciones)
		r.Get("/autoevaluaciones/{id}", h.handleAutoevaluacion)
		r.Post("/autoevaluaciones/{id}/estado", h.handleChangeEstado)
		r.Get("/cumplimientos", h.handleCumplimientos)
		r.Get("/planes", h.handlePlanes)
		r.Post("/planes/{id}", h.handleUpdatePlan)
		r.Get("/hallazgos", h.handleHallazgos)
	})
	r.Route("/api/habilitacion", func(r chi.Router) {
		r.Get("/autoevaluaciones/{id}", h.handleAPIAutoevaluacion)
		r.Post("/autoevaluaciones/{id}/estado", h.handleAPIEstado)
	})
}
