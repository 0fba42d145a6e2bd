package httpadapter

import (
	"net/http"
	"strings"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

func (rt *Router) getBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := rt.batches.GetBatch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (rt *Router) validateBatch(w http.ResponseWriter, r *http.Request) {
	result, err := rt.batches.ValidateBatch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	accepted, rejected := result.Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"batch_id": result.BatchID,
		"accepted": accepted,
		"rejected": rejected,
		"outcomes": result.Outcomes,
	})
}

func (rt *Router) confirmBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParserID string `json:"parser_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.ParserID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "parser_id is required"})
		return
	}
	if err := rt.batches.ConfirmBatch(r.Context(), r.PathValue("id"), req.ParserID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) promoteBatch(w http.ResponseWriter, r *http.Request) {
	var opts domain.PromoteOptions
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &opts); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
	}
	result, err := rt.batches.PromoteBatch(r.Context(), r.PathValue("id"), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) errorsReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	report, err := rt.batches.ErrorsReport(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`-errors.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report)
}

func (rt *Router) listItems(w http.ResponseWriter, r *http.Request) {
	status := domain.ItemValidation(strings.TrimSpace(r.URL.Query().Get("status")))
	switch status {
	case "", domain.ItemValid, domain.ItemInvalid, domain.ItemPending, domain.ItemPromoted:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown item status"})
		return
	}
	items, err := rt.batches.ListItems(r.Context(), r.PathValue("id"), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (rt *Router) patchItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Normalized map[string]any `json:"normalized"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Normalized) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "normalized is required"})
		return
	}
	item, err := rt.batches.PatchItem(r.Context(), r.PathValue("id"), r.PathValue("item"), req.Normalized)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// attachPhoto serves both the batch and the item photo route; the item path
// value is empty on the batch route.
func (rt *Router) attachPhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	if err := rt.batches.AttachPhoto(r.Context(), r.PathValue("id"), r.PathValue("item"), header.Filename, file); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
