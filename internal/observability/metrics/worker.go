package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
)

const namespace = "filemeta"

type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	analysisTotal    *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	analysisInFlight prometheus.Gauge
	queueLag         prometheus.Histogram
	receivedTotal    prometheus.Counter
	receiveErrors    prometheus.Counter
	ackTotal         *prometheus.CounterVec
	modelCalls       *prometheus.CounterVec
	modelDuration    *prometheus.HistogramVec

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	analysisTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "analysis_total",
			Help:        "Total analysed files by strategy and outcome status.",
			ConstLabels: constLabels,
		},
		[]string{"strategy", "status"},
	)
	analysisDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "analysis_duration_seconds",
			Help:        "File analysis duration in seconds by strategy and status.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			ConstLabels: constLabels,
		},
		[]string{"strategy", "status"},
	)
	analysisInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "analysis_in_flight",
			Help:        "Number of in-flight file analyses.",
			ConstLabels: constLabels,
		},
	)
	queueLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "queue_lag_seconds",
			Help:        "Delay between the file upload and message receipt.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		},
	)
	receivedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "queue",
			Name:        "messages_received_total",
			Help:        "Total messages received from the queue.",
			ConstLabels: constLabels,
		},
	)
	receiveErrors := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "queue",
			Name:        "receive_errors_total",
			Help:        "Total failed receive calls.",
			ConstLabels: constLabels,
		},
	)
	ackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "queue",
			Name:        "acks_total",
			Help:        "Total acknowledgements by result.",
			ConstLabels: constLabels,
		},
		[]string{"result"},
	)
	modelCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "llm",
			Name:        "calls_total",
			Help:        "Total generative model calls by purpose and result.",
			ConstLabels: constLabels,
		},
		[]string{"purpose", "result"},
	)
	modelDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "llm",
			Name:        "call_duration_seconds",
			Help:        "Generative model call duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"purpose"},
	)
	httpRequests, httpRequestDuration := newHTTPCollectors(constLabels)

	registry.MustRegister(
		analysisTotal,
		analysisDuration,
		analysisInFlight,
		queueLag,
		receivedTotal,
		receiveErrors,
		ackTotal,
		modelCalls,
		modelDuration,
		httpRequests,
		httpRequestDuration,
	)

	return &WorkerMetrics{
		service:             service,
		registry:            registry,
		analysisTotal:       analysisTotal,
		analysisDuration:    analysisDuration,
		analysisInFlight:    analysisInFlight,
		queueLag:            queueLag,
		receivedTotal:       receivedTotal,
		receiveErrors:       receiveErrors,
		ackTotal:            ackTotal,
		modelCalls:          modelCalls,
		modelDuration:       modelDuration,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests and for callers that add their own collectors.
func (m *WorkerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *WorkerMetrics) StartAnalysis() {
	m.analysisInFlight.Inc()
}

func (m *WorkerMetrics) FinishAnalysis(strategy domain.Strategy, status domain.OutcomeStatus, duration time.Duration) {
	m.analysisInFlight.Dec()
	m.analysisTotal.WithLabelValues(string(strategy), string(status)).Inc()
	m.analysisDuration.WithLabelValues(string(strategy), string(status)).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveReceive(count int, err error) {
	if err != nil {
		m.receiveErrors.Inc()
		return
	}
	if count > 0 {
		m.receivedTotal.Add(float64(count))
	}
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}

func (m *WorkerMetrics) ObserveAck(err error) {
	m.ackTotal.WithLabelValues(resultLabel(err)).Inc()
}

func (m *WorkerMetrics) ObserveModelCall(purpose string, duration time.Duration, err error) {
	if purpose == "" {
		purpose = "unknown"
	}
	m.modelCalls.WithLabelValues(purpose, resultLabel(err)).Inc()
	m.modelDuration.WithLabelValues(purpose).Observe(duration.Seconds())
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
