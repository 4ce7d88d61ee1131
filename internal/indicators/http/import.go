package indicatorshttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/habilita/habilita/internal/backend"
	"github.com/habilita/habilita/internal/indicators/importer"
	"github.com/habilita/habilita/internal/indicators/ui"
	"github.com/habilita/habilita/internal/shared"
	"github.com/habilita/habilita/jobs"
)

const uploadField = "file"

func (h *Handler) importPath(id string) string {
	return "/indicadores/importar/" + id
}

func (h *Handler) handleImportForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "Importar resultados", "pages/indicators/import.html", ui.ImportViewModel{
		Columns: importer.TemplateColumns,
		MaxRows: importer.MaxRows,
	})
}

func (h *Handler) handleTemplate(xlsx bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		var buf bytes.Buffer
		if err := h.importer.Template(ctx, &buf, xlsx); err != nil {
			h.handleServerError(w, "write import template", err)
			return
		}
		if xlsx {
			h.attachment(w, xlsxContentType, "plantilla-resultados.xlsx")
		} else {
			h.attachment(w, "text/csv; charset=utf-8", "plantilla-resultados.csv")
		}
		if _, err := buf.WriteTo(w); err != nil {
			h.logError("stream import template", err)
		}
	}
}

func (h *Handler) handleImportUpload(w http.ResponseWriter, r *http.Request) {
	formError := func(status int, msg string) {
		h.renderStatus(w, r, status, "Importar resultados", "pages/indicators/import.html", ui.ImportViewModel{
			Columns: importer.TemplateColumns,
			MaxRows: importer.MaxRows,
			Error:   msg,
		})
	}

	if err := r.ParseMultipartForm(importer.MaxFileSize); err != nil {
		formError(http.StatusBadRequest, "No se pudo leer el formulario de carga.")
		return
	}
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		formError(http.StatusBadRequest, "Seleccione un archivo CSV o XLSX.")
		return
	}
	defer file.Close()
	if header.Size > importer.MaxFileSize {
		formError(http.StatusBadRequest, importer.ErrFileTooLarge.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	preview, err := h.importer.Preview(ctx, header.Filename, file, actor(r))
	switch {
	case err == nil:
	case importer.IsParseError(err):
		formError(http.StatusBadRequest, err.Error())
		return
	default:
		h.logError("import preview", err)
		formError(http.StatusBadGateway, backend.Message(err))
		return
	}
	http.Redirect(w, r, h.importPath(preview.ID), http.StatusSeeOther)
}

func (h *Handler) handleImportPreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	preview, err := h.importer.Load(ctx, id)
	if errors.Is(err, importer.ErrPreviewNotFound) {
		http.Error(w, "La vista previa no existe o expiró.", http.StatusNotFound)
		return
	}
	if err != nil {
		h.handleServerError(w, "load import preview", err)
		return
	}
	vm := ui.ImportViewModel{Columns: importer.TemplateColumns, MaxRows: importer.MaxRows, Preview: &preview}
	outcome, err := h.importer.Outcome(ctx, id)
	switch {
	case err == nil:
		vm.Outcome = &outcome
		vm.Committed = true
	case errors.Is(err, importer.ErrOutcomeNotFound):
	default:
		h.logger.Warn("load import outcome", "batch", id, "error", err)
	}
	h.render(w, r, "Vista previa de importación", "pages/indicators/import_preview.html", vm)
}

func (h *Handler) handleImportCommit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess := shared.SessionFromContext(r.Context())
	flash := func(kind, msg string) {
		if sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: kind, Message: msg})
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	preview, err := h.importer.Load(ctx, id)
	if errors.Is(err, importer.ErrPreviewNotFound) {
		http.Error(w, "La vista previa no existe o expiró.", http.StatusNotFound)
		return
	}
	if err != nil {
		h.handleServerError(w, "load import preview", err)
		return
	}
	if preview.ValidCount() == 0 {
		flash("error", importer.ErrNothingToCommit.Error())
		http.Redirect(w, r, h.importPath(id), http.StatusSeeOther)
		return
	}

	if h.queue != nil {
		_, err := h.queue.EnqueueImportCommit(ctx, jobs.ImportCommitPayload{BatchID: id, Actor: actor(r)})
		switch {
		case err == nil:
			flash("info", fmt.Sprintf("Se enviaron %d filas a procesamiento. Actualice la página para ver el resultado.", preview.ValidCount()))
		case errors.Is(err, jobs.ErrDuplicateTask):
			flash("warning", "Esta carga ya fue confirmada.")
		default:
			h.logError("enqueue import commit", err)
			flash("error", "No se pudo encolar la importación.")
		}
		http.Redirect(w, r, h.importPath(id), http.StatusSeeOther)
		return
	}

	outcome, err := h.importer.Commit(ctx, id, actor(r))
	switch {
	case err == nil:
		flash("success", fmt.Sprintf("Se registraron %d resultados; %d filas omitidas.", outcome.Created, outcome.Skipped))
	case errors.Is(err, importer.ErrAlreadyCommitted):
		flash("warning", "Esta carga ya fue confirmada.")
	default:
		h.logError("import commit", err)
		flash("error", backend.Message(err))
	}
	http.Redirect(w, r, h.importPath(id), http.StatusSeeOther)
}

// HandleImportUploadForTest exposes the upload handler for tests.
func (h *Handler) HandleImportUploadForTest(w http.ResponseWriter, r *http.Request) {
	h.handleImportUpload(w, r)
}
