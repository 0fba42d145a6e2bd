package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/intake-pipeline/internal/config"
	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/observability/metrics"
)

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := writer.CreateFormFile("file", name)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestHandler(config.Config{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestEnqueueUploadsSpoolsEveryFile(t *testing.T) {
	queue := newQueueFake()
	handler := newTestHandler(config.Config{}, queue, nil)

	body, contentType := multipartBody(t, map[string]string{
		"productos.csv": "SKU;Nombre\nA1;Tornillo\n",
		"extracto.xml":  "<Document/>",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	var resp struct {
		Items []domain.UploadItem `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 2 || len(queue.enqueued) != 2 {
		t.Fatalf("expected 2 enqueued items, got %d/%d", len(resp.Items), len(queue.enqueued))
	}
	for _, f := range queue.enqueued {
		if f.Size() == 0 {
			t.Fatalf("expected spooled bytes for %s", f.Name())
		}
	}
}

func TestEnqueueUploadsMissingMultipartField(t *testing.T) {
	handler := newTestHandler(config.Config{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestEnqueueUploadsRejectsOversizedBody(t *testing.T) {
	handler := newTestHandler(config.Config{APIMaxUploadBytes: 64}, nil, nil)

	body, contentType := multipartBody(t, map[string]string{
		"big.csv": strings.Repeat("a;b\n", 200),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestListUploadsFiltersByStatus(t *testing.T) {
	queue := newQueueFake(
		domain.UploadItem{ID: "a", Status: domain.StatusReady},
		domain.UploadItem{ID: "b", Status: domain.StatusError},
		domain.UploadItem{ID: "c", Status: domain.StatusReady},
	)
	handler := newTestHandler(config.Config{}, queue, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/uploads?status=ready", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	var resp struct {
		Items []domain.UploadItem `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 2 || resp.Items[0].ID != "a" || resp.Items[1].ID != "c" {
		t.Fatalf("unexpected filtered items: %+v", resp.Items)
	}
	if len(queue.List()) != 3 {
		t.Fatalf("filtering must not modify the queue")
	}
}

func TestRemoveUploadReturns204(t *testing.T) {
	queue := newQueueFake(domain.UploadItem{ID: "a", Status: domain.StatusProcessing})
	handler := newTestHandler(config.Config{}, queue, nil)

	req := httptest.NewRequest(http.MethodDelete, "/v1/uploads/a", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if _, ok := queue.Get("a"); ok {
		t.Fatalf("expected item to be removed")
	}
}

func TestSaveUploadReturnsUpdatedItem(t *testing.T) {
	queue := newQueueFake(domain.UploadItem{ID: "a", Status: domain.StatusReady})
	handler := newTestHandler(config.Config{}, queue, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/uploads/a/save", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var item domain.UploadItem
	if err := json.NewDecoder(res.Body).Decode(&item); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if item.Status != domain.StatusSaved || item.BatchID != "batch-1" {
		t.Fatalf("unexpected item after save: %+v", item)
	}
}

func TestSetMappingAndDocumentType(t *testing.T) {
	queue := newQueueFake(domain.UploadItem{
		ID:        "a",
		Status:    domain.StatusReady,
		ErrorKind: domain.ErrorKindClassificationFailed,
		Headers:   []string{"Fecha", "Importe"},
	})
	handler := newTestHandler(config.Config{}, queue, nil)

	req := httptest.NewRequest(http.MethodPut, "/v1/uploads/a/document-type",
		strings.NewReader(`{"document_type":"bank_transactions","parser_id":"generic_bank"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("set document type: expected 200, got %d: %s", res.Code, res.Body.String())
	}

	req = httptest.NewRequest(http.MethodPut, "/v1/uploads/a/mapping",
		strings.NewReader(`{"header":"Importe","target":"amount"}`))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("set mapping: expected 200, got %d", res.Code)
	}

	item, _ := queue.Get("a")
	if item.DocumentType != domain.DocumentTypeBankTransactions || item.ParserID != "generic_bank" {
		t.Fatalf("unexpected document type: %+v", item)
	}
	if item.Mapping["Importe"] != "amount" {
		t.Fatalf("unexpected mapping: %+v", item.Mapping)
	}
}

func TestSetDocumentTypeRejectsUnknownType(t *testing.T) {
	queue := newQueueFake(domain.UploadItem{ID: "a", Status: domain.StatusReady})
	handler := newTestHandler(config.Config{}, queue, nil)

	req := httptest.NewRequest(http.MethodPut, "/v1/uploads/a/document-type",
		strings.NewReader(`{"document_type":"recipes"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func orderedMultipartBody(t *testing.T, names ...string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, name := range names {
		part, err := writer.CreateFormFile("file", name)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := part.Write([]byte("fecha;importe\n2024-01-01;10\n")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestEnqueueUploadsReleasesSpooledFilesWhenSpoolFails(t *testing.T) {
	spool := &spoolFake{failOn: "marzo.csv"}
	queue := newQueueFake()
	handler := NewRouter(config.Config{}, queue, &batchesFake{}, spool.spool, metrics.NewHTTPServerMetrics("intake-api-test")).Handler()

	body, contentType := orderedMultipartBody(t, "enero.csv", "febrero.csv", "marzo.csv")
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", res.Code, res.Body.String())
	}
	if len(queue.enqueued) != 0 {
		t.Fatalf("nothing may be enqueued when a part fails to spool")
	}
	if len(spool.files) != 2 {
		t.Fatalf("expected 2 spooled files, got %d", len(spool.files))
	}
	for _, f := range spool.files {
		if f.released != 1 {
			t.Fatalf("%s released %d times, want 1", f.name, f.released)
		}
	}
}

func TestEnqueueUploadsReleasesSpooledFilesWhenQueueRefuses(t *testing.T) {
	spool := &spoolFake{}
	queue := newQueueFake()
	queue.enqueueErr = errors.New("enqueue: queue is closed")
	handler := NewRouter(config.Config{}, queue, &batchesFake{}, spool.spool, metrics.NewHTTPServerMetrics("intake-api-test")).Handler()

	body, contentType := orderedMultipartBody(t, "enero.csv", "febrero.csv")
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if len(spool.files) != 2 {
		t.Fatalf("expected 2 spooled files, got %d", len(spool.files))
	}
	for _, f := range spool.files {
		if f.released != 1 {
			t.Fatalf("%s released %d times, want 1", f.name, f.released)
		}
	}
}

func TestEnqueueUploadsHandsFilesToQueue(t *testing.T) {
	spool := &spoolFake{}
	queue := newQueueFake()
	handler := NewRouter(config.Config{}, queue, &batchesFake{}, spool.spool, metrics.NewHTTPServerMetrics("intake-api-test")).Handler()

	body, contentType := orderedMultipartBody(t, "enero.csv")
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if len(spool.files) != 1 || spool.files[0].released != 0 {
		t.Fatalf("enqueued files belong to the queue, got %+v", spool.files)
	}
}
