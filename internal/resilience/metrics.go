package resilience

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors for outbound calls, labelled by upstream target.
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "upstream_breaker_state",
		Help: "Breaker state per upstream (0 closed, 1 open, 2 half-open).",
	}, []string{"target"})

	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_breaker_transitions_total",
		Help: "Breaker state changes per upstream.",
	}, []string{"target", "from", "to"})

	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_breaker_opened_total",
		Help: "Times the breaker for an upstream tripped open.",
	}, []string{"target"})

	RetryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_retries_total",
		Help: "Retried upstream calls.",
	}, []string{"target"})
)

var registerOnce sync.Once

// MustRegisterMetrics registers the collectors on reg, or on the default
// registerer when reg is nil. Later calls are no-ops.
func MustRegisterMetrics(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal, RetryAttempts)
	})
}
