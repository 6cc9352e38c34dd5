// Package metrics provides Prometheus collectors of the contract ledger.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "snapshot"

// Ledger groups collectors describing ledger invocations. Nil Ledger is a
// valid no-op collector set.
type Ledger struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	height      prometheus.Gauge
}

// NewLedger constructs Ledger collectors and registers them in reg.
func NewLedger(reg prometheus.Registerer) (*Ledger, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Ledger{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "invocations_total",
			Help:      "Number of contract invocations by result state.",
		}, []string{"contract", "method", "state"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "invocation_duration_seconds",
			Help:      "Duration of contract invocations including witness verification.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"contract", "method"}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "height",
			Help:      "Number of committed invocations.",
		}),
	}

	for _, c := range []prometheus.Collector{m.invocations, m.duration, m.height} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}

	return m, nil
}

// ObserveInvocation accounts single invocation finished with the given state
// ("halt" or "fault").
func (m *Ledger) ObserveInvocation(contract, method, state string, d time.Duration) {
	if m == nil {
		return
	}

	m.invocations.WithLabelValues(contract, method, state).Inc()
	m.duration.WithLabelValues(contract, method).Observe(d.Seconds())
}

// SetHeight sets current ledger height.
func (m *Ledger) SetHeight(h uint32) {
	if m == nil {
		return
	}

	m.height.Set(float64(h))
}
