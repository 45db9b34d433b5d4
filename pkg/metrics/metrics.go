package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PurchasesProcessed counts purchase attempts by outcome (success or error kind)
var PurchasesProcessed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "investex_purchases_total",
		Help: "Total number of purchase requests by outcome",
	},
	[]string{"outcome"},
)

// PurchaseLatency records latency distribution for purchase processing
var PurchaseLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "investex_purchase_latency_seconds",
		Help:    "Latency in seconds to process a purchase including retries",
		Buckets: prometheus.DefBuckets,
	},
)

// PurchaseRetries counts purchases re-run after a conflicting concurrent update
var PurchaseRetries = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "investex_purchase_retries_total",
		Help: "Total number of purchase retries after a write conflict",
	},
)

// DepositDecisions counts deposit decisions by resulting status
var DepositDecisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "investex_deposit_decisions_total",
		Help: "Total number of deposit decisions by status",
	},
	[]string{"status"},
)

// NotificationsPublished counts notification fan-out attempts by result
var NotificationsPublished = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "investex_notifications_published_total",
		Help: "Total number of notifications handed to the message broker",
	},
	[]string{"result"},
)

// Database connection pool metrics
var (
	DBOpenConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "investex_db_open_connections",
			Help: "Number of open connections in the DB pool",
		},
		[]string{"db"},
	)

	DBIdleConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "investex_db_idle_connections",
			Help: "Number of idle connections in the DB pool",
		},
		[]string{"db"},
	)

	DBInUseConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "investex_db_in_use_connections",
			Help: "Number of in-use connections in the DB pool",
		},
		[]string{"db"},
	)
)

func init() {
	prometheus.MustRegister(PurchasesProcessed, PurchaseLatency, PurchaseRetries)
	prometheus.MustRegister(DepositDecisions, NotificationsPublished)
	prometheus.MustRegister(DBOpenConns, DBIdleConns, DBInUseConns)
}

// ObserveDBStats copies pool statistics into the gauges.
func ObserveDBStats(name string, stats sql.DBStats) {
	DBOpenConns.WithLabelValues(name).Set(float64(stats.OpenConnections))
	DBIdleConns.WithLabelValues(name).Set(float64(stats.Idle))
	DBInUseConns.WithLabelValues(name).Set(float64(stats.InUse))
}

// ObservePurchase records the outcome and latency of one purchase.
func ObservePurchase(outcome string, started time.Time) {
	PurchasesProcessed.WithLabelValues(outcome).Inc()
	PurchaseLatency.Observe(time.Since(started).Seconds())
}
