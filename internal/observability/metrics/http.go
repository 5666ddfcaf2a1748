package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	pipelineRequestsTotal *prometheus.CounterVec
	tierRequestsTotal     *prometheus.CounterVec
	retrievalHitTotal     *prometheus.CounterVec
	noContextTotal        *prometheus.CounterVec
	passagesReturned      *prometheus.HistogramVec
	pipelineDuration      *prometheus.HistogramVec
	degradationsTotal     *prometheus.CounterVec
	findingsTotal         *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "caa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "caa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	pipelineRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caa",
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Total successful pipeline requests.",
		},
		[]string{"service", "endpoint"},
	)
	tierRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caa",
			Subsystem: "pipeline",
			Name:      "tier_requests_total",
			Help:      "Total successful pipeline requests by graph query tier.",
		},
		[]string{"service", "endpoint", "tier"},
	)
	retrievalHitTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caa",
			Subsystem: "pipeline",
			Name:      "retrieval_hit_total",
			Help:      "Total pipeline requests with at least one retrieved passage.",
		},
		[]string{"service", "endpoint"},
	)
	noContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caa",
			Subsystem: "pipeline",
			Name:      "no_context_total",
			Help:      "Total pipeline requests without retrieved passages.",
		},
		[]string{"service", "endpoint"},
	)
	passagesReturned := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "caa",
			Subsystem: "pipeline",
			Name:      "passages_returned",
			Help:      "Distribution of passages returned per successful request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "endpoint"},
	)
	pipelineDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "caa",
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	degradationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caa",
			Subsystem: "pipeline",
			Name:      "degradations_total",
			Help:      "Total degradation markers reported on responses.",
		},
		[]string{"service", "endpoint", "reason"},
	)
	findingsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caa",
			Subsystem: "risk",
			Name:      "findings_total",
			Help:      "Total risk findings returned, by severity.",
		},
		[]string{"service", "severity"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		pipelineRequestsTotal,
		tierRequestsTotal,
		retrievalHitTotal,
		noContextTotal,
		passagesReturned,
		pipelineDuration,
		degradationsTotal,
		findingsTotal,
	)

	return &HTTPServerMetrics{
		registry:              registry,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		pipelineRequestsTotal: pipelineRequestsTotal,
		tierRequestsTotal:     tierRequestsTotal,
		retrievalHitTotal:     retrievalHitTotal,
		noContextTotal:        noContextTotal,
		passagesReturned:      passagesReturned,
		pipelineDuration:      pipelineDuration,
		degradationsTotal:     degradationsTotal,
		findingsTotal:         findingsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/drugs/"):
		return "/v1/drugs/{name}"
	case strings.HasPrefix(path, "/v1/guidelines/"):
		return "/v1/guidelines/{document_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordPipelineObservation(service, endpoint string, passageCount int, duration time.Duration) {
	m.pipelineRequestsTotal.WithLabelValues(service, endpoint).Inc()
	m.passagesReturned.WithLabelValues(service, endpoint).Observe(float64(passageCount))
	m.pipelineDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())

	if passageCount > 0 {
		m.retrievalHitTotal.WithLabelValues(service, endpoint).Inc()
		return
	}
	m.noContextTotal.WithLabelValues(service, endpoint).Inc()
}

func (m *HTTPServerMetrics) RecordTierRequest(service, endpoint, tier string) {
	if tier == "" {
		tier = "unknown"
	}
	m.tierRequestsTotal.WithLabelValues(service, endpoint, tier).Inc()
}

func (m *HTTPServerMetrics) RecordDegradation(service, endpoint, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.degradationsTotal.WithLabelValues(service, endpoint, reason).Inc()
}

func (m *HTTPServerMetrics) RecordRiskFinding(service, severity string) {
	if severity == "" {
		severity = "unknown"
	}
	m.findingsTotal.WithLabelValues(service, severity).Inc()
}

// RegisterRerankPoolGauges exposes the shared inference pool: busy
// workers sampled live, capacity as a constant.
func (m *HTTPServerMetrics) RegisterRerankPoolGauges(service string, running func() int, capacity int) {
	busy := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "caa",
			Subsystem: "rerank",
			Name:      "pool_busy_workers",
			Help:      "Workers in the rerank pool currently executing a task.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
		func() float64 { return float64(running()) },
	)
	capacity64 := float64(capacity)
	capGauge := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "caa",
			Subsystem: "rerank",
			Name:      "pool_capacity",
			Help:      "Fixed worker count of the rerank pool.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	capGauge.Set(capacity64)
	m.registry.MustRegister(busy, capGauge)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
