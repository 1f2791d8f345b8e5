// Package metrics holds the prometheus collectors of the ledger.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	ledgerMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "delivery_ledger",
			Subsystem: "wallet",
			Name:      "mutations_total",
			Help:      "Wallet mutations by transaction type and result.",
		},
		[]string{"type", "result"},
	)

	ledgerVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "delivery_ledger",
			Subsystem: "wallet",
			Name:      "amount_centavos_total",
			Help:      "Absolute centavos moved by committed wallet mutations.",
		},
		[]string{"type"},
	)

	cashDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "delivery_ledger",
			Subsystem: "cash_debt",
			Name:      "decisions_total",
			Help:      "Cash order acceptance decisions and policy enforcement actions.",
		},
		[]string{"action"},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "delivery_ledger",
			Subsystem: "settlement",
			Name:      "requests_total",
			Help:      "Cash settlement requests by result.",
		},
		[]string{"result"},
	)

	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "delivery_ledger",
			Subsystem: "payout",
			Name:      "deliveries_total",
			Help:      "Delivery completions by payment method and result.",
		},
		[]string{"payment_method", "result"},
	)

	auditRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "delivery_ledger",
			Subsystem: "audit",
			Name:      "runs_total",
			Help:      "Full audits by resulting system health.",
		},
		[]string{"health"},
	)

	auditFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "delivery_ledger",
			Subsystem: "audit",
			Name:      "check_failures_total",
			Help:      "Failed audit checks by check name.",
		},
		[]string{"check"},
	)

	auditDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "delivery_ledger",
			Subsystem: "audit",
			Name:      "duration_seconds",
			Help:      "Duration of full audits.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
	)
)

func init() {
	Registry.MustRegister(
		ledgerMutations,
		ledgerVolume,
		cashDecisions,
		settlements,
		deliveries,
		auditRuns,
		auditFailures,
		auditDuration,
	)
}

// Handler exposes the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordMutation counts one wallet mutation attempt.
func RecordMutation(txType, result string, amount int64) {
	ledgerMutations.WithLabelValues(txType, result).Inc()
	if result == "ok" {
		if amount < 0 {
			amount = -amount
		}
		ledgerVolume.WithLabelValues(txType).Add(float64(amount))
	}
}

// RecordCashDecision counts a cash policy decision: accept, reject, warn, block or reinstate.
func RecordCashDecision(action string) {
	cashDecisions.WithLabelValues(action).Inc()
}

// RecordSettlement counts a settlement request.
func RecordSettlement(result string) {
	settlements.WithLabelValues(result).Inc()
}

// RecordDelivery counts a delivery completion attempt.
func RecordDelivery(paymentMethod, result string) {
	deliveries.WithLabelValues(paymentMethod, result).Inc()
}

// RecordAudit records a finished audit run.
func RecordAudit(health string, failedChecks []string, took time.Duration) {
	auditRuns.WithLabelValues(health).Inc()
	for _, name := range failedChecks {
		auditFailures.WithLabelValues(name).Inc()
	}
	auditDuration.Observe(took.Seconds())
}
