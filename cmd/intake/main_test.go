package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommandListsSubcommands(t *testing.T) {
	out, err := runCLI(t, "--help")
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	for _, name := range []string{"import", "watch", "batch", "progress"} {
		if !strings.Contains(out, name) {
			t.Fatalf("help output missing %q:\n%s", name, out)
		}
	}
}

func TestBatchShowRendersBackendBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/imports/batches/b-1" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"b-1","origin":"upload","source_type":"products","status":"validated","total_items":1200,"valid_items":1198,"invalid_items":2}`))
	}))
	defer srv.Close()
	t.Setenv("BACKEND_URL", srv.URL)
	t.Setenv("BACKEND_RPS", "0")

	out, err := runCLI(t, "batch", "show", "b-1")
	if err != nil {
		t.Fatalf("batch show: %v", err)
	}
	for _, want := range []string{"validated", "products", "1,200", "1,198"} {
		if !strings.Contains(out, want) {
			t.Fatalf("batch show output missing %q:\n%s", want, out)
		}
	}
}

func TestBatchPromoteSurfacesConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"b-1","source_type":"products","status":"promoted"}`))
	}))
	defer srv.Close()
	t.Setenv("BACKEND_URL", srv.URL)
	t.Setenv("BACKEND_RPS", "0")

	_, err := runCLI(t, "batch", "promote", "b-1")
	if !domain.IsKind(err, domain.ErrPromotionConflict) {
		t.Fatalf("expected promotion conflict, got %v", err)
	}
}

func TestItemDetailPrefersGuidance(t *testing.T) {
	failed := domain.UploadItem{
		Status:    domain.StatusError,
		Error:     "ocr job timed out",
		ErrorKind: domain.ErrorKindOCRTimeout,
	}
	if got := itemDetail(failed); !strings.Contains(got, "check OCR worker health") {
		t.Fatalf("expected guidance in detail, got %q", got)
	}

	ready := domain.UploadItem{Status: domain.StatusReady, RequiresConfirmation: true, Progress: "42 rows"}
	if got := itemDetail(ready); got != "needs confirmation" {
		t.Fatalf("expected confirmation hint, got %q", got)
	}
}

func TestSettled(t *testing.T) {
	if settled([]domain.UploadItem{{Status: domain.StatusReady}, {Status: domain.StatusProcessing}}) {
		t.Fatalf("processing item must keep the import waiting")
	}
	if !settled([]domain.UploadItem{{Status: domain.StatusReady}, {Status: domain.StatusSaved}, {Status: domain.StatusError}}) {
		t.Fatalf("ready, saved and error items are settled")
	}
}

func TestProgressLine(t *testing.T) {
	line := progressLine(domain.BatchProgress{
		BatchID:       "b-1",
		Processed:     2500,
		Total:         10000,
		Status:        "processing",
		CurrentStep:   "normalize",
		ErrorCount:    3,
		RowsPerSecond: 125.5,
		ETASeconds:    60,
	})
	for _, want := range []string{"processing [normalize]", "2,500/10,000 (25%)", "125.5 rows/s", "eta 1m0s", "3 errors"} {
		if !strings.Contains(line, want) {
			t.Fatalf("progress line %q missing %q", line, want)
		}
	}
	if progressDone(domain.BatchProgress{Status: "processing"}) {
		t.Fatalf("processing batch is not done")
	}
	if !progressDone(domain.BatchProgress{Status: string(domain.BatchValidated)}) {
		t.Fatalf("validated batch is done")
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"only"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(out, "only") || !strings.Contains(out, "A") {
		t.Fatalf("unexpected table:\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatalf("expected empty output without headers")
	}
}
