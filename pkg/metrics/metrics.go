package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	IntentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settler_intents_created_total",
		Help: "The total number of intents created, by source chain",
	}, []string{"chain"})

	QuotesSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settler_quotes_submitted_total",
		Help: "The total number of solver quotes accepted",
	})

	IntentsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settler_intents_settled_total",
		Help: "Intents reaching a terminal status, by outcome",
	}, []string{"outcome"})

	ActiveIntents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settler_active_intents",
		Help: "The number of intents in a non-terminal status",
	})

	VerificationResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settler_verification_results_total",
		Help: "Deposit verification attempts, by chain and outcome",
	}, []string{"chain", "outcome"})

	EscrowLocked = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "settler_escrow_locked",
		Help: "Total locked escrow per asset, in base units",
	}, []string{"asset"})

	FeesCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settler_fees_collected_total",
		Help: "Protocol fees collected per asset, in base units",
	}, []string{"asset"})

	HighFeeQuotes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settler_high_fee_quotes_total",
		Help: "Fee breakdowns flagged for a combined rate at or above 10%",
	})

	// CriticalInconsistencies counts escrow-release failures after a
	// committed payout: custody and accounting are out of sync and need
	// manual reconciliation.
	CriticalInconsistencies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settler_critical_inconsistencies_total",
		Help: "Accounting inconsistencies requiring operator intervention",
	})

	TransferFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settler_transfer_failures_total",
		Help: "Failed payout or refund transfers, by operation",
	}, []string{"operation"})

	IntentsExpiredBySweep = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settler_intents_expired_total",
		Help: "Intents expired by the deadline sweep",
	})

	IntentsSweptFromRetention = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settler_intents_swept_total",
		Help: "Terminal intents removed by the retention sweep",
	})
)
