package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SettlementsTotal counts settlement attempts by outcome
	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_settlements_total",
			Help: "Total number of settlement attempts by outcome",
		},
		[]string{"outcome"},
	)

	// SettlementDuration tracks per-item settlement attempt time
	SettlementDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_settlement_duration_seconds",
			Help:    "Settlement attempt duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// EventsApplied counts ledger events applied to the local mirror
	EventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_events_applied_total",
			Help: "Total number of ledger events applied by type",
		},
		[]string{"event_type"},
	)

	// LastProcessedBlock tracks the reconciliation checkpoint
	LastProcessedBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_last_processed_block",
			Help: "Highest block whose events have been fully applied",
		},
	)

	// QueueDepth tracks settlement queue size by status
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_queue_depth",
			Help: "Number of settlement queue items by status",
		},
		[]string{"status"},
	)

	// ExpiredAuctions counts auctions discovered past expiry
	ExpiredAuctions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_expired_auctions_total",
			Help: "Total number of expired auctions discovered",
		},
	)

	// GasUsed tracks gas consumed by confirmed settlement transactions
	GasUsed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_settlement_gas_used",
			Help:    "Gas used by confirmed settlement transactions",
			Buckets: []float64{50000, 100000, 200000, 300000, 500000},
		},
	)

	// ErrorsTotal counts errors by component
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// Heartbeats counts liveness ticks
	Heartbeats = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_heartbeats_total",
			Help: "Total number of heartbeat ticks",
		},
	)
)
