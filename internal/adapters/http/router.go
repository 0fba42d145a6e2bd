package httpadapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/intake-pipeline/internal/config"
	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/core/ports"
	"github.com/kirillkom/intake-pipeline/internal/observability/metrics"
)

const (
	defaultMaxUploadBytes = 256 << 20
	multipartMemoryBytes  = 32 << 20
)

// Spooler stores one uploaded part on local disk and returns a reopenable
// reference to it.
type Spooler func(ctx context.Context, name, contentType string, data io.Reader) (domain.FileSource, error)

type Router struct {
	queue   ports.IntakeQueue
	batches ports.BatchOperator
	spool   Spooler
	metrics *metrics.HTTPServerMetrics

	maxUploadBytes   int64
	rateLimitRPS     float64
	rateLimitBurst   int
	maxInFlight      int
	backpressureWait time.Duration
}

func NewRouter(
	cfg config.Config,
	queue ports.IntakeQueue,
	batches ports.BatchOperator,
	spool Spooler,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	maxUpload := cfg.APIMaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	return &Router{
		queue:            queue,
		batches:          batches,
		spool:            spool,
		metrics:          httpMetrics,
		maxUploadBytes:   maxUpload,
		rateLimitRPS:     cfg.APIRateLimitRPS,
		rateLimitBurst:   cfg.APIRateLimitBurst,
		maxInFlight:      cfg.APIBackpressureMaxInFlight,
		backpressureWait: cfg.APIBackpressureWait,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("POST /v1/uploads", rt.enqueueUploads)
	mux.HandleFunc("GET /v1/uploads", rt.listUploads)
	mux.HandleFunc("GET /v1/uploads/{id}", rt.getUpload)
	mux.HandleFunc("DELETE /v1/uploads/{id}", rt.removeUpload)
	mux.HandleFunc("POST /v1/uploads/{id}/save", rt.saveUpload)
	mux.HandleFunc("PUT /v1/uploads/{id}/mapping", rt.setMapping)
	mux.HandleFunc("PUT /v1/uploads/{id}/document-type", rt.setDocumentType)

	mux.HandleFunc("GET /v1/batches/{id}", rt.getBatch)
	mux.HandleFunc("POST /v1/batches/{id}/validate", rt.validateBatch)
	mux.HandleFunc("POST /v1/batches/{id}/confirm", rt.confirmBatch)
	mux.HandleFunc("POST /v1/batches/{id}/promote", rt.promoteBatch)
	mux.HandleFunc("GET /v1/batches/{id}/errors", rt.errorsReport)
	mux.HandleFunc("GET /v1/batches/{id}/items", rt.listItems)
	mux.HandleFunc("PATCH /v1/batches/{id}/items/{item}", rt.patchItem)
	mux.HandleFunc("POST /v1/batches/{id}/photos", rt.attachPhoto)
	mux.HandleFunc("POST /v1/batches/{id}/items/{item}/photos", rt.attachPhoto)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.maxInFlight, rt.backpressureWait)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("intake-api", handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError answers with the mapped status and, for queue errors, the
// operator guidance for the error kind.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	body := map[string]string{"error": err.Error()}
	if kind := domain.KindOf(err); kind != domain.ErrorKindNone && kind != domain.ErrorKindUnknown {
		body["error_kind"] = string(kind)
		if guidance := domain.GuidanceFor(kind); guidance != "" {
			body["guidance"] = guidance
		}
	}
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
