package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CouponApplyTotal counts coupon apply attempts by outcome reason.
	CouponApplyTotal *prometheus.CounterVec
	// CheckoutTotal counts order placement outcomes.
	CheckoutTotal *prometheus.CounterVec
	// PricingDriftTotal counts disagreements between local and server pricing.
	PricingDriftTotal *prometheus.CounterVec
	// StoreAPIDuration records store API call latency in milliseconds.
	StoreAPIDuration *prometheus.HistogramVec
	// CacheLookupTotal counts Redis cache hits and misses.
	CacheLookupTotal *prometheus.CounterVec
	// PaymentIntentTotal counts payment intent creation attempts.
	PaymentIntentTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// TaskTotal counts background task executions.
	TaskTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CouponApplyTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_apply_total",
			Help:      "Count of coupon apply attempts by result.",
		}, []string{"result"}))
		CheckoutTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout attempts by result.",
		}, []string{"result"}))
		PricingDriftTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_drift_total",
			Help:      "Count of local versus server pricing mismatches.",
		}, []string{"source"}))
		StoreAPIDuration = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storeapi_request_duration_ms",
			Help:      "Store API request latency in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"op", "status"}))
		CacheLookupTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookup_total",
			Help:      "Count of cache lookups by cache and result.",
		}, []string{"cache", "result"}))
		PaymentIntentTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intent_total",
			Help:      "Count of payment intent processing outcomes.",
		}, []string{"provider", "result"}))
		PaymentWebhookTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"provider", "result"}))
		TaskTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_total",
			Help:      "Count of background task executions by type and result.",
		}, []string{"type", "result"}))
	})
}

// IncCounter increments vec when domain metrics are registered.
func IncCounter(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}
