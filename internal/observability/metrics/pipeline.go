package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

// PipelineMetrics records queue measurements. It implements
// ports.PipelineObserver.
type PipelineMetrics struct {
	service string

	transitionsTotal *prometheus.CounterVec
	classifiedTotal  *prometheus.CounterVec
	chunkBytesTotal  prometheus.Counter
	ocrPollsTotal    *prometheus.CounterVec
	saveDuration     *prometheus.HistogramVec
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	transitionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "queue",
			Name:      "item_transitions_total",
			Help:      "Item status transitions.",
		},
		[]string{"service", "from", "to"},
	)
	classifiedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "classifier",
			Name:      "results_total",
			Help:      "Successful classifications by provider and confidence band.",
		},
		[]string{"service", "provider", "band"},
	)
	chunkBytesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "upload",
			Name:      "chunk_bytes_total",
			Help:      "Bytes acknowledged by the chunked upload endpoint.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	ocrPollsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "ocr",
			Name:      "polls_total",
			Help:      "OCR job polls by outcome.",
		},
		[]string{"service", "outcome"},
	)
	saveDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "queue",
			Name:      "save_duration_seconds",
			Help:      "Duration of item saves by status.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service", "status"},
	)

	registerer.MustRegister(transitionsTotal, classifiedTotal, chunkBytesTotal, ocrPollsTotal, saveDuration)

	return &PipelineMetrics{
		service:          service,
		transitionsTotal: transitionsTotal,
		classifiedTotal:  classifiedTotal,
		chunkBytesTotal:  chunkBytesTotal,
		ocrPollsTotal:    ocrPollsTotal,
		saveDuration:     saveDuration,
	}
}

func (m *PipelineMetrics) ItemTransition(from, to domain.ItemStatus) {
	fromLabel := string(from)
	if fromLabel == "" {
		fromLabel = "none"
	}
	m.transitionsTotal.WithLabelValues(m.service, fromLabel, string(to)).Inc()
}

func (m *PipelineMetrics) Classified(provider string, band domain.ConfidenceBand) {
	if provider == "" {
		provider = "unknown"
	}
	m.classifiedTotal.WithLabelValues(m.service, provider, string(band)).Inc()
}

func (m *PipelineMetrics) ChunkUploaded(bytes int64) {
	if bytes <= 0 {
		return
	}
	m.chunkBytesTotal.Add(float64(bytes))
}

func (m *PipelineMetrics) OCRPolled(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.ocrPollsTotal.WithLabelValues(m.service, outcome).Inc()
}

func (m *PipelineMetrics) SaveFinished(duration time.Duration, err error) {
	status := "success"
	switch {
	case domain.IsKind(err, domain.ErrDuplicate):
		status = "duplicate"
	case err != nil:
		status = "error"
	}
	m.saveDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}
