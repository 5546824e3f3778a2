package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slopoverlord/slopoverlord/internal/metrics"
)

func getCounterValue(t *testing.T, counter *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := counter.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	_ = c.(prometheus.Metric).Write(m)
	return m.GetCounter().GetValue()
}

func getCounterValue1(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	_ = counter.(prometheus.Metric).Write(m)
	return m.GetCounter().GetValue()
}

func getGaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	_ = gauge.(prometheus.Metric).Write(m)
	return m.GetGauge().GetValue()
}

func TestActiveWorkersGauge(t *testing.T) {
	before := getGaugeValue(t, metrics.ActiveWorkers)
	metrics.ActiveWorkers.Inc()
	after := getGaugeValue(t, metrics.ActiveWorkers)
	assert.Equal(t, float64(1), after-before)

	metrics.ActiveWorkers.Dec()
	afterDec := getGaugeValue(t, metrics.ActiveWorkers)
	assert.Equal(t, before, afterDec)
}

func TestActiveSessionsGauge(t *testing.T) {
	before := getGaugeValue(t, metrics.ActiveSessions)
	metrics.ActiveSessions.Inc()
	after := getGaugeValue(t, metrics.ActiveSessions)
	assert.Equal(t, float64(1), after-before)

	metrics.ActiveSessions.Dec()
	afterDec := getGaugeValue(t, metrics.ActiveSessions)
	assert.Equal(t, before, afterDec)
}

func TestChannelsQuarantinedGauge(t *testing.T) {
	before := getGaugeValue(t, metrics.ChannelsQuarantined)
	metrics.ChannelsQuarantined.Inc()
	after := getGaugeValue(t, metrics.ChannelsQuarantined)
	assert.Equal(t, float64(1), after-before)
	metrics.ChannelsQuarantined.Dec()
}

func TestWorkerTransitionsTotal_IncrementsByStatus(t *testing.T) {
	before := getCounterValue(t, metrics.WorkerTransitionsTotal, "completed")
	metrics.WorkerTransitionsTotal.WithLabelValues("completed").Inc()
	after := getCounterValue(t, metrics.WorkerTransitionsTotal, "completed")
	assert.Equal(t, float64(1), after-before)
}

func TestRouteDecisionsTotal_IncrementsByAction(t *testing.T) {
	before := getCounterValue(t, metrics.RouteDecisionsTotal, "respond")
	metrics.RouteDecisionsTotal.WithLabelValues("respond").Inc()
	after := getCounterValue(t, metrics.RouteDecisionsTotal, "respond")
	assert.Equal(t, float64(1), after-before)
}

func TestCompactionThresholdCrossingsTotal_IncrementsByLevel(t *testing.T) {
	before := getCounterValue(t, metrics.CompactionThresholdCrossingsTotal, "soft")
	metrics.CompactionThresholdCrossingsTotal.WithLabelValues("soft").Inc()
	after := getCounterValue(t, metrics.CompactionThresholdCrossingsTotal, "soft")
	assert.Equal(t, float64(1), after-before)
}

func TestToolAuthorizationDeniedTotal_IncrementsByReason(t *testing.T) {
	before := getCounterValue(t, metrics.ToolAuthorizationDeniedTotal, "default_policy_deny")
	metrics.ToolAuthorizationDeniedTotal.WithLabelValues("default_policy_deny").Inc()
	after := getCounterValue(t, metrics.ToolAuthorizationDeniedTotal, "default_policy_deny")
	assert.Equal(t, float64(1), after-before)
}

func TestStreamSubscribersDroppedTotal_Increments(t *testing.T) {
	before := getCounterValue1(t, metrics.StreamSubscribersDroppedTotal)
	metrics.StreamSubscribersDroppedTotal.Inc()
	after := getCounterValue1(t, metrics.StreamSubscribersDroppedTotal)
	assert.Equal(t, float64(1), after-before)
}

func TestMetricsRegistered(t *testing.T) {
	count, err := testutil.GatherAndCount(prometheus.DefaultGatherer)
	require.NoError(t, err)
	assert.Greater(t, count, 0, "should have registered metrics")
}
