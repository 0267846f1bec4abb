package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksCommittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_blocks_committed_total",
		Help: "Total number of blocks appended to the chain",
	})

	blocksRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_blocks_rejected_total",
		Help: "Total number of blocks rejected, by failure kind",
	}, []string{"reason"})

	transactionsCommittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transactions_committed_total",
		Help: "Total number of transactions committed, by type",
	}, []string{"type"})

	transactionsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_transactions_rejected_total",
		Help: "Total number of transactions rejected at submission",
	})

	tokensMintedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_tokens_minted_e9s_total",
		Help: "Total newly minted token units in e9s",
	})

	feesRecycledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_fees_recycled_e9s_total",
		Help: "Total transaction fees recycled into reward pools, in e9s",
	})

	chainHeightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_chain_height",
		Help: "Height of the latest committed block",
	})

	totalSupplyGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_total_supply_e9s",
		Help: "Circulating token supply in e9s",
	})

	pendingPoolGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_pending_transactions",
		Help: "Number of transactions waiting for the next block",
	})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests by method, path and status",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "HTTP request latency by method and path",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// RecordBlockCommitted updates the counters and gauges for a freshly
// committed block
func RecordBlockCommitted(block Block, effects BlockEffects, totalSupplyE9s uint64) {
	blocksCommittedTotal.Inc()
	chainHeightGauge.Set(float64(block.Height))
	totalSupplyGauge.Set(float64(totalSupplyE9s))
	tokensMintedTotal.Add(float64(effects.NewlyMintedE9s))
	feesRecycledTotal.Add(float64(effects.FeesCollectedE9s - effects.FeesDestroyedE9s))
	for _, tx := range block.Transactions {
		transactionsCommittedTotal.WithLabelValues(string(tx.Type)).Inc()
	}
}

// RecordBlockRejected counts a rejected block by failure kind
func RecordBlockRejected(reason string) {
	blocksRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordTransactionRejected counts a transaction refused at submission
func RecordTransactionRejected() {
	transactionsRejectedTotal.Inc()
}

// RecordPendingPoolSize tracks the size of the pending transaction pool
func RecordPendingPoolSize(n int) {
	pendingPoolGauge.Set(float64(n))
}
