package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DepositsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invest_ledger",
			Name:      "deposits_created_total",
			Help:      "Pending deposits logged by the deposit workflow",
		},
		[]string{"method"},
	)

	ProofsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "invest_ledger",
			Name:      "proofs_submitted_total",
			Help:      "Payment proofs attached to pending deposits",
		},
	)

	WithdrawalsRequested = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "invest_ledger",
			Name:      "withdrawals_requested_total",
			Help:      "Pending withdrawals logged",
		},
	)

	TransactionsReviewed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invest_ledger",
			Name:      "transactions_reviewed_total",
			Help:      "Administrative decisions by transaction type and outcome",
		},
		[]string{"type", "status"},
	)

	StoreConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invest_ledger",
			Name:      "store_conflicts_total",
			Help:      "Compare-and-swap writes that lost against a concurrent writer",
		},
		[]string{"operation"},
	)

	StoreFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "invest_ledger",
			Name:      "store_fallbacks_total",
			Help:      "Reads served from the last known snapshot because the backend failed",
		},
	)

	SignIns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invest_ledger",
			Name:      "sign_ins_total",
			Help:      "Sign-in attempts by actor and result",
		},
		[]string{"actor", "result"},
	)
)
