package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"MailMerge/internal/dataset"
	"MailMerge/internal/dispatch"
	"MailMerge/internal/models"
	"MailMerge/internal/outcome"
	"MailMerge/internal/placeholder"
	"MailMerge/internal/render"
	"MailMerge/internal/templatestore"
)

const maxUploadBytes = 32 << 20

type Handler struct {
	Store      templatestore.Store
	Dispatcher *dispatch.Coordinator
	Recorder   *outcome.Recorder
	BlankRows  int
	Log        *zap.Logger
}

// CreateTemplate stores an uploaded HTML template under a name and
// reports the placeholders it contains.
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	name := r.FormValue("template_name")
	if name == "" {
		http.Error(w, "template_name is required", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("template")
	if err != nil {
		http.Error(w, "template file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	html, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Store.CreateOrUpdate(r.Context(), name, string(html), r.FormValue("subject")); err != nil {
		h.Log.Error("template upsert failed", zap.String("template", name), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"template":     name,
		"placeholders": placeholder.Unique(placeholder.Extract(string(html))),
	})
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	names, err := h.Store.List(r.Context())
	if err != nil {
		h.Log.Error("template list failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": names})
}

func (h *Handler) ViewTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := h.fetchTemplate(w, r, r.PathValue("name"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"template": tmpl.Name,
		"html":     tmpl.HTML,
		"subject":  tmpl.Subject,
	})
}

// UpdateTemplate replaces the HTML body of an existing template.
func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var body struct {
		HTML    string `json:"html"`
		Subject string `json:"subject"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.HTML == "" {
		http.Error(w, "html is required", http.StatusBadRequest)
		return
	}

	if err := h.Store.CreateOrUpdate(r.Context(), name, body.HTML, body.Subject); err != nil {
		h.Log.Error("template update failed", zap.String("template", name), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"template": name})
}

func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if err := h.Store.Delete(r.Context(), name); err != nil {
		if errors.Is(err, templatestore.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.Log.Error("template delete failed", zap.String("template", name), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DownloadWorkbook regenerates the upload spreadsheet for a template:
// Email, one column per placeholder, and a Y/N-constrained Attachment
// column.
func (h *Handler) DownloadWorkbook(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := h.fetchTemplate(w, r, r.PathValue("name"))
	if !ok {
		return
	}

	book, err := dataset.BuildWorkbook(placeholder.Extract(tmpl.HTML), h.BlankRows)
	if err != nil {
		h.Log.Error("workbook build failed", zap.String("template", tmpl.Name), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="Template_format.xlsx"`)
	w.Write(book)
}

// Preview renders the template against the first data row of an
// uploaded workbook.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tmpl, ok := h.fetchTemplate(w, r, r.FormValue("template_name"))
	if !ok {
		return
	}

	ds, ok := h.readDataset(w, r)
	if !ok {
		return
	}
	if len(ds.Rows) == 0 {
		http.Error(w, "dataset has no data rows", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rendered_template": render.Render(tmpl.HTML, ds.Rows[0].Fields),
	})
}

// Dispatch runs one bulk send batch. Per-row failures are visible only
// through the report surfaces; the response carries aggregate counts.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	name := r.FormValue("template_name")
	if name == "" {
		http.Error(w, "template_name is required", http.StatusBadRequest)
		return
	}
	subject := r.FormValue("subject")
	if subject == "" {
		http.Error(w, "subject is required", http.StatusBadRequest)
		return
	}

	ds, ok := h.readDataset(w, r)
	if !ok {
		return
	}

	attachment, err := readAttachment(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	summary, err := h.Dispatcher.Dispatch(r.Context(), name, ds.Rows, attachment, subject)
	if err != nil {
		if errors.Is(err, templatestore.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.Log.Error("bulk dispatch failed", zap.String("template", name), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sent":            summary.Sent,
		"failed":          summary.Failed,
		"skipped":         summary.Skipped,
		"record_failures": summary.RecordFailures,
	})
}

func (h *Handler) SuccessReport(w http.ResponseWriter, r *http.Request) {
	h.report(w, outcome.StatusSent)
}

func (h *Handler) FailedReport(w http.ResponseWriter, r *http.Request) {
	h.report(w, outcome.StatusFailed)
}

func (h *Handler) report(w http.ResponseWriter, status outcome.Status) {
	records, err := h.Recorder.ReadAll(status)
	if err != nil {
		h.Log.Error("report read failed", zap.String("status", string(status)), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": records})
}

// fetchTemplate resolves a template by name, writing the error response
// itself when the lookup fails.
func (h *Handler) fetchTemplate(w http.ResponseWriter, r *http.Request, name string) (templatestore.Template, bool) {
	if name == "" {
		http.Error(w, "template_name is required", http.StatusBadRequest)
		return templatestore.Template{}, false
	}

	tmpl, err := h.Store.Get(r.Context(), name)
	if err != nil {
		if errors.Is(err, templatestore.ErrNotFound) {
			http.Error(w, fmt.Sprintf("template %q not found", name), http.StatusNotFound)
			return templatestore.Template{}, false
		}
		h.Log.Error("template fetch failed", zap.String("template", name), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return templatestore.Template{}, false
	}
	return tmpl, true
}

func (h *Handler) readDataset(w http.ResponseWriter, r *http.Request) (*dataset.Dataset, bool) {
	file, _, err := r.FormFile("dataset")
	if err != nil {
		http.Error(w, "dataset file is required", http.StatusBadRequest)
		return nil, false
	}
	defer file.Close()

	ds, err := dataset.Read(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return ds, true
}

func readAttachment(r *http.Request) (*models.Attachment, error) {
	file, header, err := r.FormFile("attachment")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	return &models.Attachment{Filename: header.Filename, Data: data}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
