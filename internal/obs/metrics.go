package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentIntentTotal counts intent reconciliation outcomes.
	PaymentIntentTotal *prometheus.CounterVec
	// SetupIntentTotal counts setup intent creation outcomes.
	SetupIntentTotal *prometheus.CounterVec
	// WebhookTotal counts inbound webhook processing outcomes.
	WebhookTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentIntentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intent_total",
			Help:      "Count of payment intent reconciliation outcomes.",
		}, []string{"method", "result"})
		SetupIntentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "setup_intent_total",
			Help:      "Count of setup intent creation outcomes.",
		}, []string{"method", "result"})
		WebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"mode", "result"})

		reg.MustRegister(PaymentIntentTotal, SetupIntentTotal, WebhookTotal)
	})
}

// DurationMillis converts a duration to float milliseconds for metric labels.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
