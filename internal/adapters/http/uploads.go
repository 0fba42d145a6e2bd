package httpadapter

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

func (rt *Router) enqueueUploads(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > rt.maxUploadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload exceeds size limit"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload exceeds size limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form is required"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}

	files := make([]domain.FileSource, 0, len(headers))
	for _, header := range headers {
		file, err := rt.spoolPart(r, header)
		if err != nil {
			releaseFiles(files)
			writeError(w, r, err)
			return
		}
		files = append(files, file)
	}

	// The queue owns the files only once Enqueue succeeds.
	items, err := rt.queue.Enqueue(r.Context(), files)
	if err != nil {
		releaseFiles(files)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"items": items})
}

func releaseFiles(files []domain.FileSource) {
	for _, f := range files {
		if err := domain.ReleaseFile(f); err != nil {
			slog.Warn("spool_release_failed", "name", f.Name(), "error", err)
		}
	}
}

func (rt *Router) spoolPart(r *http.Request, header *multipart.FileHeader) (domain.FileSource, error) {
	part, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open part %s: %w", header.Filename, err)
	}
	defer part.Close()

	file, err := rt.spool(r.Context(), header.Filename, header.Header.Get("Content-Type"), part)
	if err != nil {
		return nil, fmt.Errorf("spool %s: %w", header.Filename, err)
	}
	return file, nil
}

func (rt *Router) listUploads(w http.ResponseWriter, r *http.Request) {
	items := rt.queue.List()
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		filtered := items[:0]
		for _, it := range items {
			if string(it.Status) == status {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (rt *Router) getUpload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	item, ok := rt.queue.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "upload not found"})
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (rt *Router) removeUpload(w http.ResponseWriter, r *http.Request) {
	if err := rt.queue.Remove(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) saveUpload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := rt.queue.Save(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	item, _ := rt.queue.Get(id)
	writeJSON(w, http.StatusOK, item)
}

func (rt *Router) setMapping(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Header string `json:"header"`
		Target string `json:"target"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Header) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "header is required"})
		return
	}

	id := r.PathValue("id")
	if err := rt.queue.SetMapping(r.Context(), id, req.Header, req.Target); err != nil {
		writeError(w, r, err)
		return
	}
	item, _ := rt.queue.Get(id)
	writeJSON(w, http.StatusOK, item)
}

func (rt *Router) setDocumentType(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentType string `json:"document_type"`
		ParserID     string `json:"parser_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	docType, err := domain.ParseDocumentType(req.DocumentType)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id := r.PathValue("id")
	if err := rt.queue.SetDocumentType(r.Context(), id, docType, req.ParserID); err != nil {
		writeError(w, r, err)
		return
	}
	item, _ := rt.queue.Get(id)
	writeJSON(w, http.StatusOK, item)
}
