package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterWithLabels(t *testing.T, mfs []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	mf := findMetricFamily(mfs, name)
	require.NotNil(t, mf, "metric %s", name)
	for _, metric := range mf.GetMetric() {
		matched := true
		for k, v := range labels {
			if !matchesLabel(metric.GetLabel(), k, v) {
				matched = false
				break
			}
		}
		if matched {
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s missing labels %v", name, labels)
	return 0
}

func TestOrderMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)

	m.ObserveSettlement("approved", true)
	m.ObserveSettlement("approved", false)
	m.ObserveSettlement("", true)
	m.ObserveCheckout("ok")
	m.ObserveCheckout("INSUFFICIENT_STOCK")
	m.AddShortfall(2)
	m.AddShortfall(-1)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	assert.Equal(t, 1.0, counterWithLabels(t, mfs, "gogift_settlements_total", map[string]string{"outcome": "approved", "changed": "true"}))
	assert.Equal(t, 1.0, counterWithLabels(t, mfs, "gogift_settlements_total", map[string]string{"outcome": "approved", "changed": "false"}))
	assert.Equal(t, 1.0, counterWithLabels(t, mfs, "gogift_settlements_total", map[string]string{"outcome": "unknown"}))
	assert.Equal(t, 1.0, counterWithLabels(t, mfs, "gogift_checkout_total", map[string]string{"result": "INSUFFICIENT_STOCK"}))
	assert.Equal(t, 2.0, counterWithLabels(t, mfs, "gogift_codes_short_total", nil))
}

func TestOrderMetricsNilSafe(t *testing.T) {
	var m *OrderMetrics
	m.ObserveSettlement("approved", true)
	m.ObserveCheckout("ok")
	m.AddShortfall(1)

	empty := NewOrderMetrics(nil)
	empty.ObserveSettlement("approved", true)
	empty.ObserveCheckout("ok")
}
