package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sweep metrics
var (
	SweepTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sera_sweep_ticks_total",
			Help: "Total number of sweep ticks executed",
		},
		[]string{"result"}, // "ok", "error", "skipped"
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sera_sweep_duration_seconds",
			Help:    "Duration of sweep ticks in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReplyOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sera_reply_outcomes_total",
			Help: "Total reply outcomes recorded by the engine",
		},
		[]string{"status"}, // "sent", "failed", "skipped", "not_matched"
	)

	ScheduledRepliesCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sera_scheduled_replies_current",
			Help: "Number of scheduled replies pending execution",
		},
	)
)

// Dispatch metrics
var (
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sera_dispatch_total",
			Help: "Total dispatch attempts against the messaging provider",
		},
		[]string{"result"}, // "success", "failure"
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sera_dispatch_duration_seconds",
			Help:    "Duration of dispatch calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
	)
)

// Database metrics
var (
	DBPoolTotalConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sera_db_pool_total_conns",
			Help: "Total connections in the database pool",
		},
		[]string{"role"},
	)

	DBPoolIdleConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sera_db_pool_idle_conns",
			Help: "Idle connections in the database pool",
		},
		[]string{"role"},
	)

	DBPoolInUseConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sera_db_pool_in_use_conns",
			Help: "Acquired connections in the database pool",
		},
		[]string{"role"},
	)

	ClaimConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sera_claim_conflicts_total",
			Help: "Ledger claims lost to the unique constraint",
		},
	)
)
