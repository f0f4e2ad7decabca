// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "consent_reading"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal     prometheus.Counter
	SessionsActive    prometheus.Gauge
	SessionsCompleted prometheus.Counter
	SessionsStopped   prometheus.Counter
	SessionDuration   prometheus.Histogram

	// Statement metrics
	StatementsCompleted prometheus.Counter
	ListenPhases        prometheus.Counter

	// Transcript metrics
	FragmentsReceived *prometheus.CounterVec

	// Validation metrics
	ValidationsTotal *prometheus.CounterVec
	SimilarityScore  prometheus.Histogram

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioFramesReceived prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// STT metrics
	StreamErrors *prometheus.CounterVec

	// Backpressure metrics
	PhaseLimitExceeded *prometheus.CounterVec

	// gRPC metrics
	GRPCStreamsActive prometheus.Gauge
	GRPCCalls         *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of reading sessions started",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active reading sessions",
		}),
		SessionsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Total number of sessions where every statement was verified",
		}),
		SessionsStopped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_stopped_total",
			Help:      "Total number of sessions abandoned before completion",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of reading sessions in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),

		StatementsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statements_completed_total",
			Help:      "Total number of statements verified",
		}),
		ListenPhases: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listen_phases_total",
			Help:      "Total number of listening phases opened",
		}),

		FragmentsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_received_total",
			Help:      "Total number of transcript fragments received",
		}, []string{"kind"}),

		ValidationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Total number of validation attempts",
		}, []string{"outcome"}),
		SimilarityScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "similarity_score",
			Help:      "Similarity score of validation attempts",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),

		AudioBytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		AudioFramesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames received",
		}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		StreamErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_errors_total",
			Help:      "Total number of listening phases ending in error",
		}, []string{"code"}),

		PhaseLimitExceeded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_limit_exceeded_total",
			Help:      "Total number of times listening phase limits were exceeded",
		}, []string{"limit_type"}),

		GRPCStreamsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grpc_streams_active",
			Help:      "Number of currently active gRPC streams",
		}),
		GRPCCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "Total number of gRPC calls",
		}, []string{"method", "code"}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending.
func (m *Metrics) RecordSessionEnd(completed bool, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
	if completed {
		m.SessionsCompleted.Inc()
	} else {
		m.SessionsStopped.Inc()
	}
}

// RecordStatementCompleted records a verified statement.
func (m *Metrics) RecordStatementCompleted() {
	m.StatementsCompleted.Inc()
}

// RecordListenPhase records a listening phase being opened.
func (m *Metrics) RecordListenPhase() {
	m.ListenPhases.Inc()
}

// RecordFragment records a transcript fragment.
func (m *Metrics) RecordFragment(isFinal bool) {
	kind := "interim"
	if isFinal {
		kind = "final"
	}
	m.FragmentsReceived.WithLabelValues(kind).Inc()
}

// RecordValidation records a validation attempt and its score.
func (m *Metrics) RecordValidation(outcome string, score float64) {
	m.ValidationsTotal.WithLabelValues(outcome).Inc()
	m.SimilarityScore.Observe(score)
}

// RecordAudioReceived records audio bytes and frames received.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioFramesReceived.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordStreamError records a listening phase failure by code.
func (m *Metrics) RecordStreamError(code string) {
	m.StreamErrors.WithLabelValues(code).Inc()
}

// RecordLimitExceeded records when a phase limit is exceeded.
func (m *Metrics) RecordLimitExceeded(limitType string) {
	m.PhaseLimitExceeded.WithLabelValues(limitType).Inc()
}

// RecordGRPCStreamStart records a gRPC stream starting.
func (m *Metrics) RecordGRPCStreamStart() {
	m.GRPCStreamsActive.Inc()
}

// RecordGRPCCall records a finished gRPC call or stream.
func (m *Metrics) RecordGRPCCall(method, code string, stream bool) {
	if stream {
		m.GRPCStreamsActive.Dec()
	}
	m.GRPCCalls.WithLabelValues(method, code).Inc()
}
