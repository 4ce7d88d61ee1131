package indicatorshttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/habilita/habilita/internal/shared"
)

// MountRoutes registers the indicator pages, exports, import flow and JSON
// API onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/indicadores", h.handleDashboard)
	r.Get("/indicadores/resultados", h.handleResults)
	r.Get("/api/indicadores/resultados", h.handleAPIResults)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/indicadores/export.csv", h.handleCSV)
		gr.Get("/indicadores/export.xlsx", h.handleXLSX)
		if h.pdf != nil {
			gr.Get("/indicadores/reporte.pdf", h.handlePDF)
		}
		if h.importer != nil {
			gr.Get("/indicadores/plantilla.csv", h.handleTemplate(false))
			gr.Get("/indicadores/plantilla.xlsx", h.handleTemplate(true))
		}
	})
	if h.importer != nil {
		r.Get("/indicadores/importar", h.handleImportForm)
		r.With(limiter).Post("/indicadores/importar", h.handleImportUpload)
		r.Get("/indicadores/importar/{id}", h.handleImportPreview)
		r.Post("/indicadores/importar/{id}/confirmar", h.handleImportCommit)
	}
}

func rateLimitKey(r *http.Request) (string, error) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if user := strings.TrimSpace(sess.User()); user != "" {
			return "user:" + user, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
