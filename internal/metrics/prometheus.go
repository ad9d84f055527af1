package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the transcription service
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	ActiveSessions prometheus.Gauge
	SessionsTotal  prometheus.Counter
	SessionErrors  *prometheus.CounterVec

	// Ingestion metrics
	ChunksReceived    prometheus.Counter
	ChunksRejected    prometheus.Counter
	SegmentsDiscarded prometheus.Counter

	// Recognition metrics
	RecognitionTasks    prometheus.Counter
	RecognitionDropped  prometheus.Counter
	SilentSegments      prometheus.Counter
	RecognitionDuration prometheus.Histogram

	// Translation metrics
	TranslationDuration prometheus.Histogram
	TranslationFailures prometheus.Counter

	// Output metrics
	MessagesSent *prometheus.CounterVec
}

// New creates all metrics on a dedicated registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "livescribe_active_sessions",
			Help: "Current number of open streaming sessions",
		}),
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_sessions_total",
			Help: "Total number of sessions accepted",
		}),
		SessionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livescribe_session_errors_total",
			Help: "Sessions torn down by an error, by kind",
		}, []string{"kind"}),

		ChunksReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_chunks_received_total",
			Help: "Total number of inbound audio chunks",
		}),
		ChunksRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_chunks_rejected_total",
			Help: "Inbound chunks dropped for malformed audio",
		}),
		SegmentsDiscarded: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_segments_discarded_total",
			Help: "Buffered audio discarded by a phrase timeout",
		}),

		RecognitionTasks: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_recognition_tasks_total",
			Help: "Recognition tasks queued for inference",
		}),
		RecognitionDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_recognition_dropped_total",
			Help: "Recognition tasks dropped because the session backlog was full",
		}),
		SilentSegments: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_silent_segments_total",
			Help: "Segments skipped by the silence guard without calling the model",
		}),
		RecognitionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livescribe_recognition_duration_seconds",
			Help:    "Time spent in the acoustic model per task",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		TranslationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livescribe_translation_duration_seconds",
			Help:    "Time spent in the translation backend per line",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		TranslationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_translation_failures_total",
			Help: "Translations that fell back to the source text",
		}),

		MessagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livescribe_messages_sent_total",
			Help: "Outbound messages by type",
		}, []string{"type"}),
	}
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
