package proxy

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.recordOutcome("orders", outcomeSuccess)
		m.observeBackend("orders", time.Second)
	})
}

func TestMetrics_ObserveBackend(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	metrics.observeBackend("orders", 20*time.Millisecond)
	metrics.observeBackend("orders", 2*time.Second)
	metrics.recordOutcome("orders", outcomeSuccess)
	metrics.recordOutcome("orders", KindUpstreamTimeout.String())

	histogram, err := metrics.backendDuration.GetMetricWithLabelValues("orders")
	require.NoError(t, err)

	var m io_prometheus_client.Metric
	require.NoError(t, histogram.(prometheus.Metric).Write(&m))
	assert.Equal(t, uint64(2), m.GetHistogram().GetSampleCount())
	assert.InDelta(t, 2.02, m.GetHistogram().GetSampleSum(), 0.001)

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]*io_prometheus_client.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}
	require.Contains(t, byName, "gateway_proxy_forward_total")
	require.Contains(t, byName, "gateway_proxy_backend_duration_seconds")
	assert.Len(t, byName["gateway_proxy_forward_total"].GetMetric(), 2)
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	assert.Panics(t, func() { NewMetrics(reg) })
}
