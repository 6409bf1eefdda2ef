package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UnmatchedService labels requests that address no configured service, so
// arbitrary paths cannot grow label cardinality.
const UnmatchedService = "unmatched"

var (
	requestLabels = []string{"method", "service", "status"}

	latencyBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
)

// Metrics holds the inbound request metrics and owns the registry served
// on the metrics endpoint.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	responseSize    *prometheus.HistogramVec
	activeRequests  prometheus.Gauge
	buildInfo       *prometheus.GaugeVec
}

// NewMetrics creates the request metrics under namespace ("gateway" when
// empty) on a fresh registry that also carries Go and process collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests served by the gateway",
		}, requestLabels),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from request receipt to response write",
			Buckets:   latencyBuckets,
		}, requestLabels),
		responseSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_size_bytes",
			Help:      "Response body size written to clients",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		}, []string{"method", "service"}),
		activeRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Requests currently in flight",
		}),
		buildInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Always 1; labels carry the running build",
		}, []string{"version", "commit", "build_time"}),
	}

	factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "start_time_seconds",
		Help:      "Process start as unix seconds",
	}).SetToCurrentTime()

	return m
}

// RecordRequest records one completed request. service is a configured
// name or UnmatchedService, never a raw path segment. A negative size
// skips the size histogram.
func (m *Metrics) RecordRequest(method, service string, status int, duration time.Duration, size int) {
	if service == "" {
		service = UnmatchedService
	}
	code := strconv.Itoa(status)

	m.requestsTotal.WithLabelValues(method, service, code).Inc()
	m.requestDuration.WithLabelValues(method, service, code).Observe(duration.Seconds())
	if size >= 0 {
		m.responseSize.WithLabelValues(method, service).Observe(float64(size))
	}
}

func (m *Metrics) IncActiveRequests() { m.activeRequests.Inc() }

func (m *Metrics) DecActiveRequests() { m.activeRequests.Dec() }

// SetBuildInfo publishes the running version.
func (m *Metrics) SetBuildInfo(version, commit, buildTime string) {
	m.buildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// Handler serves the registry in text or OpenMetrics format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry is where other packages register their collectors so one
// endpoint exposes everything.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
