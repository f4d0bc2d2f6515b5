package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gogift"

// OrderMetrics counts checkout attempts and settlement transitions.
type OrderMetrics struct {
	settlements *prometheus.CounterVec
	checkouts   *prometheus.CounterVec
	shortfall   prometheus.Counter
}

// NewOrderMetrics registers the order metrics on reg. A nil registerer
// yields a no-op recorder.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlements_total",
		Help:      "Settlement attempts by normalized outcome and whether the order changed.",
	}, []string{"outcome", "changed"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_total",
		Help:      "Checkout attempts by result code.",
	}, []string{"result"})
	shortfall := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "codes_short_total",
		Help:      "Purchased units that could not be served from a fixed code pool.",
	})
	reg.MustRegister(settlements, checkouts, shortfall)
	return &OrderMetrics{settlements: settlements, checkouts: checkouts, shortfall: shortfall}
}

// ObserveSettlement records one settle call.
func (m *OrderMetrics) ObserveSettlement(outcome string, changed bool) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(outcome), strconv.FormatBool(changed)).Inc()
}

// ObserveCheckout records one checkout with result "ok" or an error code.
func (m *OrderMetrics) ObserveCheckout(result string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(result)).Inc()
}

// AddShortfall records units lost to fixed-pool overbooking.
func (m *OrderMetrics) AddShortfall(units int) {
	if m == nil || m.shortfall == nil || units <= 0 {
		return
	}
	m.shortfall.Add(float64(units))
}
