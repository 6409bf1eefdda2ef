package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for health probes.
type Metrics struct {
	checksTotal *prometheus.CounterVec
	checkStatus *prometheus.GaugeVec
}

// NewMetrics registers the health metrics with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	m := &Metrics{
		checksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "health",
				Name:      "checks_total",
				Help:      "Total number of health probes served",
			},
			[]string{"type"},
		),
		checkStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Subsystem: "health",
				Name:      "check_status",
				Help:      "Current check status (1=healthy, 0.5=degraded, 0=unhealthy)",
			},
			[]string{"check"},
		),
	}

	for _, probe := range []string{"liveness", "readiness"} {
		m.checksTotal.WithLabelValues(probe)
	}

	return m
}

func (m *Metrics) recordProbe(probe string) {
	if m == nil {
		return
	}
	m.checksTotal.WithLabelValues(probe).Inc()
}

func (m *Metrics) setCheckStatus(check string, status Status) {
	if m == nil {
		return
	}
	var v float64
	switch status {
	case StatusHealthy:
		v = 1
	case StatusDegraded:
		v = 0.5
	}
	m.checkStatus.WithLabelValues(check).Set(v)
}
