package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/core/ports"
)

var _ ports.PipelineObserver = (*PipelineMetrics)(nil)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/v1/uploads/abc/save":             "/v1/uploads/{upload_id}/save",
		"/v1/batches/b-1/items/i-9/photos": "/v1/batches/{batch_id}/items/{item_id}/photos",
		"/v1/batches/b-1/promote":          "/v1/batches/{batch_id}/promote",
		"/v1/uploads":                      "/v1/uploads",
		"/healthz":                         "/healthz",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPipelineMetricsShareHTTPRegistry(t *testing.T) {
	httpMetrics := NewHTTPServerMetrics("intake-api")
	pipeline := NewPipelineMetrics("intake-api", httpMetrics.Registry())

	pipeline.ItemTransition(domain.StatusPending, domain.StatusProcessing)
	pipeline.ItemTransition(domain.StatusPending, domain.StatusProcessing)
	pipeline.Classified("ai", domain.BandHigh)
	pipeline.ChunkUploaded(1024)
	pipeline.OCRPolled("pending")
	pipeline.SaveFinished(time.Second, domain.WrapError(domain.ErrDuplicate, "save item", errors.New("409")))

	if got := testutil.ToFloat64(pipeline.transitionsTotal.WithLabelValues("intake-api", "pending", "processing")); got != 2 {
		t.Fatalf("expected 2 transitions, got %v", got)
	}
	if got := testutil.ToFloat64(pipeline.chunkBytesTotal); got != 1024 {
		t.Fatalf("expected 1024 bytes, got %v", got)
	}

	handler := httpMetrics.Middleware("intake-api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/uploads", nil))

	rec := httptest.NewRecorder()
	httpMetrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`intake_queue_item_transitions_total{from="pending",service="intake-api",to="processing"} 2`,
		`intake_queue_save_duration_seconds_count{service="intake-api",status="duplicate"} 1`,
		`intake_http_requests_total{method="POST",path="/v1/uploads",service="intake-api",status="202"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
