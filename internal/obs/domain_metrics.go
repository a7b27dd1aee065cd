package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// WebhookEventsTotal counts inbound payment webhook outcomes by event type.
	WebhookEventsTotal *prometheus.CounterVec
	// ReconcileTotal counts provider reconciliation outcomes.
	ReconcileTotal *prometheus.CounterVec
	// ReconcileLatency records provider order fetch latency in milliseconds.
	ReconcileLatency *prometheus.HistogramVec
	// FraudAlertsTotal counts fraud alerts written to the ledger.
	FraudAlertsTotal prometheus.Counter
	// LedgerTxRetries counts serialization-conflict retries of ledger transactions.
	LedgerTxRetries prometheus.Counter
	// StatusQueryTotal counts status query outcomes.
	StatusQueryTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		WebhookEventsTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Count of processed payment webhooks by event type and outcome.",
		}, []string{"event_type", "result"}))
		ReconcileTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_total",
			Help:      "Count of provider order reconciliation outcomes.",
		}, []string{"result"}))
		ReconcileLatency = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_ms",
			Help:      "Latency of provider order fetches in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"result"}))
		FraudAlertsTotal = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fraud_alerts_total",
			Help:      "Number of fraud alerts created during settlement.",
		}))
		LedgerTxRetries = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_tx_retries_total",
			Help:      "Number of ledger transaction retries after serialization conflicts.",
		}))
		StatusQueryTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_query_total",
			Help:      "Count of payment status query outcomes.",
		}, []string{"result"}))
	})
}
