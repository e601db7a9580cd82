package subscription

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	webhookEvents *prometheus.CounterVec
	transitions   *prometheus.CounterVec
}

// newMetrics registers the package collectors with reg. Collectors that are
// already registered are reused, so a Service and a Reconciler can share a registry.
func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		webhookEvents: registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cashier",
			Name:      "webhook_events_total",
			Help:      "Webhook events received, by event type and outcome.",
		}, []string{"type", "outcome"})),
		transitions: registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cashier",
			Name:      "subscription_transitions_total",
			Help:      "Subscription lifecycle operations, by operation and result.",
		}, []string{"operation", "result"})),
	}
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *metrics) webhookEvent(t EventType, o Outcome) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(string(t), string(o)).Inc()
}

func (m *metrics) transition(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.transitions.WithLabelValues(op, result).Inc()
}
