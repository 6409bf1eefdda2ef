package proxy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// unknownService labels calls for names absent from the registry so that
// arbitrary inbound names cannot grow label cardinality.
const unknownService = "unknown"

const outcomeSuccess = "success"

// Metrics contains Prometheus metrics for forwarding.
type Metrics struct {
	forwardTotal    *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
}

// NewMetrics registers forwarding metrics with registerer. A nil
// registerer uses the default registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		forwardTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "proxy",
				Name:      "forward_total",
				Help:      "Total number of forwarded requests by outcome",
			},
			[]string{"service", "outcome"},
		),
		backendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Subsystem: "proxy",
				Name:      "backend_duration_seconds",
				Help:      "Duration of backend round trips including body read",
				Buckets: []float64{
					.001, .005, .01, .025,
					.05, .1, .25, .5,
					1, 2.5, 5, 10, 30,
				},
			},
			[]string{"service"},
		),
	}
}

func (m *Metrics) recordOutcome(service, outcome string) {
	if m == nil {
		return
	}
	m.forwardTotal.WithLabelValues(service, outcome).Inc()
}

func (m *Metrics) observeBackend(service string, d time.Duration) {
	if m == nil {
		return
	}
	m.backendDuration.WithLabelValues(service).Observe(d.Seconds())
}
