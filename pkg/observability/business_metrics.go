package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reconciliation metrics
	reconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconciliations_total",
		Help: "Total gateway confirmations reconciled against the ledger",
	}, []string{
		"gateway",      // Which gateway adapter produced the result
		"received_via", // return, callback
		"outcome",      // captured, cancelled, failed, pending, capture_failed
	})

	duplicateConfirmationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_duplicate_confirmations_total",
		Help: "Gateway confirmations suppressed by the ledger's CAS barrier",
	}, []string{
		"gateway",
	})

	callbackAuthFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callback_auth_failures_total",
		Help: "Callbacks rejected because signature verification failed",
	}, []string{
		"gateway",
	})

	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invoice_verifications_total",
		Help: "Completed invoice verification poll loops",
	}, []string{
		"is_paid",   // true, false
		"timed_out", // true, false
	})
)

// RecordReconciliation counts one reconciled gateway confirmation
func RecordReconciliation(gateway, receivedVia, outcome string) {
	reconciliationsTotal.WithLabelValues(gateway, receivedVia, outcome).Inc()
}

// RecordDuplicateConfirmation counts a confirmation the CAS barrier suppressed
func RecordDuplicateConfirmation(gateway string) {
	duplicateConfirmationsTotal.WithLabelValues(gateway).Inc()
}

// RecordCallbackAuthFailure counts an unauthenticated callback delivery
func RecordCallbackAuthFailure(gateway string) {
	callbackAuthFailuresTotal.WithLabelValues(gateway).Inc()
}

// RecordVerification counts a finished verification loop
func RecordVerification(isPaid, timedOut bool) {
	verificationsTotal.WithLabelValues(boolLabel(isPaid), boolLabel(timedOut)).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
