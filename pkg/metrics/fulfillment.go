package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FulfillmentMetrics tracks Stripe webhook outcomes and checkout session creation.
type FulfillmentMetrics struct {
	events   *prometheus.CounterVec
	apply    *prometheus.HistogramVec
	sessions *prometheus.CounterVec
}

// NewFulfillmentMetrics registers the fulfillment collectors. A nil
// registerer yields a no-op recorder.
func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhooks",
		Name:      "events_total",
		Help:      "Stripe webhook deliveries by event type and terminal state.",
	}, []string{"event_type", "state"})
	apply := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "webhooks",
		Name:      "apply_duration_seconds",
		Help:      "Time spent applying a verified webhook event.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"event_type"})
	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "sessions_total",
		Help:      "Checkout sessions requested from Stripe by mode and result.",
	}, []string{"mode", "result"})
	reg.MustRegister(events, apply, sessions)
	return &FulfillmentMetrics{events: events, apply: apply, sessions: sessions}
}

// IncEvent counts a webhook delivery that reached a terminal state.
func (m *FulfillmentMetrics) IncEvent(eventType, state string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(state)).Inc()
}

// ObserveApply records how long applying an event took.
func (m *FulfillmentMetrics) ObserveApply(eventType string, elapsed time.Duration) {
	if m == nil || m.apply == nil {
		return
	}
	m.apply.WithLabelValues(normalizeLabel(eventType)).Observe(elapsed.Seconds())
}

// IncSession counts a checkout session attempt. result is "created" or "failed".
func (m *FulfillmentMetrics) IncSession(mode, result string) {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.WithLabelValues(normalizeLabel(mode), normalizeLabel(result)).Inc()
}
