package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

// WorkerMetrics implements ports.PipelineMetrics on a private registry.
type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	examTotal        *prometheus.CounterVec
	examDuration     *prometheus.HistogramVec
	examInFlight     prometheus.Gauge
	imageTotal       *prometheus.CounterVec
	imageDuration    *prometheus.HistogramVec
	providerAttempts *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	rejectedFindings prometheus.Counter
	breakerState     *prometheus.GaugeVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	serviceLabel := prometheus.Labels{"service": service}

	examTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "worker",
			Name:      "exam_process_total",
			Help:      "Total processed exams by final status.",
		},
		[]string{"service", "status"},
	)
	examDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dental",
			Subsystem: "worker",
			Name:      "exam_process_duration_seconds",
			Help:      "Exam processing duration in seconds by final status.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "status"},
	)
	examInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "dental",
			Subsystem:   "worker",
			Name:        "exam_process_in_flight",
			Help:        "Number of exams being processed.",
			ConstLabels: serviceLabel,
		},
	)
	imageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "pipeline",
			Name:      "image_total",
			Help:      "Image pipeline outcomes by status and failing stage.",
		},
		[]string{"service", "status", "stage"},
	)
	imageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dental",
			Subsystem: "pipeline",
			Name:      "image_duration_seconds",
			Help:      "Image pipeline duration in seconds by status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 45, 90, 180},
		},
		[]string{"service", "status"},
	)
	providerAttempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "provider",
			Name:      "attempts_total",
			Help:      "Vision provider attempts by provider and result.",
		},
		[]string{"service", "provider", "result"},
	)
	providerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dental",
			Subsystem: "provider",
			Name:      "attempt_duration_seconds",
			Help:      "Vision provider attempt duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60},
		},
		[]string{"service", "provider"},
	)
	rejectedFindings := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "dental",
			Subsystem:   "pipeline",
			Name:        "rejected_findings_total",
			Help:        "Findings dropped by the confidence floor.",
			ConstLabels: serviceLabel,
		},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "dental",
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)
	registry.MustRegister(
		examTotal,
		examDuration,
		examInFlight,
		imageTotal,
		imageDuration,
		providerAttempts,
		providerDuration,
		rejectedFindings,
		breakerState,
	)

	return &WorkerMetrics{
		registry:         registry,
		service:          service,
		examTotal:        examTotal,
		examDuration:     examDuration,
		examInFlight:     examInFlight,
		imageTotal:       imageTotal,
		imageDuration:    imageDuration,
		providerAttempts: providerAttempts,
		providerDuration: providerDuration,
		rejectedFindings: rejectedFindings,
		breakerState:     breakerState,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) ExamStarted() {
	m.examInFlight.Inc()
}

func (m *WorkerMetrics) ExamFinished(status domain.ExamStatus, duration time.Duration) {
	m.examInFlight.Dec()
	m.examTotal.WithLabelValues(m.service, string(status)).Inc()
	m.examDuration.WithLabelValues(m.service, string(status)).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveImage(status domain.ImageStatus, stage string, duration time.Duration) {
	if stage == "" {
		stage = "none"
	}
	m.imageTotal.WithLabelValues(m.service, string(status), stage).Inc()
	m.imageDuration.WithLabelValues(m.service, string(status)).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveProviderAttempt(provider string, err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.providerAttempts.WithLabelValues(m.service, provider, result).Inc()
	m.providerDuration.WithLabelValues(m.service, provider).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveRejectedFindings(count int) {
	if count <= 0 {
		return
	}
	m.rejectedFindings.Add(float64(count))
}

// ObserveBreakerState matches resilience.StateObserver.
func (m *WorkerMetrics) ObserveBreakerState(operation, _, to string) {
	value := 0.0
	switch to {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}
