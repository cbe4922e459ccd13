package ledger

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records ledger operation activity for the /metrics endpoint.
type Metrics struct {
	operations *prometheus.CounterVec
	events     prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsRegistry *Metrics
)

// ServiceMetrics returns the lazily-initialised ledger metrics registry.
func ServiceMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsRegistry = &Metrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "towerledger",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Total ledger operations segmented by engine, operation, and result.",
			}, []string{"engine", "op", "result"}),
			events: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "towerledger",
				Subsystem: "ledger",
				Name:      "events_emitted_total",
				Help:      "Total engine events fanned out to subscribers.",
			}),
		}
		prometheus.MustRegister(metricsRegistry.operations, metricsRegistry.events)
	})
	return metricsRegistry
}

// RecordOperation increments the operation counter for one engine call.
func (m *Metrics) RecordOperation(engine, op string, err error) {
	if m == nil || m.operations == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(engine, op, result).Inc()
}

// RecordEvents counts events delivered to subscribers.
func (m *Metrics) RecordEvents(n int) {
	if m == nil || m.events == nil || n <= 0 {
		return
	}
	m.events.Add(float64(n))
}
