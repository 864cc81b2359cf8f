package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Payment confirmation outcomes.
const (
	ConfirmationPlaced    = "placed"
	ConfirmationDuplicate = "duplicate"
	ConfirmationFailed    = "failed"
)

// OrderMetrics records order placement and stock allocation activity.
type OrderMetrics struct {
	created       prometheus.Counter
	rejected      *prometheus.CounterVec
	confirmations *prometheus.CounterVec
	allocated     prometheus.Counter
	allocDuration prometheus.Histogram
	transitions   *prometheus.CounterVec
}

// NewOrderMetrics registers the order metrics on the provided registerer. A nil
// registerer yields a no-op recorder.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	m := &OrderMetrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Pending orders created and handed to the payment gateway.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_create_rejections_total",
			Help: "Order requests rejected before persistence, by reason.",
		}, []string{"reason"}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_payment_confirmations_total",
			Help: "Payment confirmations processed, by outcome.",
		}, []string{"outcome"}),
		allocated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inventory_units_allocated_total",
			Help: "Units of stock decremented by the allocation engine.",
		}),
		allocDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_allocation_duration_seconds",
			Help:    "Time spent allocating stock for a confirmed order.",
			Buckets: prometheus.DefBuckets,
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_status_transitions_total",
			Help: "Order status transitions, by target status.",
		}, []string{"to"}),
	}
	reg.MustRegister(m.created, m.rejected, m.confirmations, m.allocated, m.allocDuration, m.transitions)
	return m
}

func (m *OrderMetrics) IncCreated() {
	if m == nil || m.created == nil {
		return
	}
	m.created.Inc()
}

func (m *OrderMetrics) IncRejected(reason string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *OrderMetrics) IncConfirmation(outcome string) {
	if m == nil || m.confirmations == nil {
		return
	}
	m.confirmations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveAllocation records one confirmed order's allocation run.
func (m *OrderMetrics) ObserveAllocation(units int, duration time.Duration) {
	if m == nil || m.allocated == nil {
		return
	}
	m.allocated.Add(float64(units))
	m.allocDuration.Observe(duration.Seconds())
}

func (m *OrderMetrics) IncTransition(to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(to)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
