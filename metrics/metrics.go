package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "inventory"

var (
	transactionsPosted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_posted_total",
		Help:      "Sale transactions committed, by mode (single, bulk).",
	}, []string{"mode"})

	ledgerRowsPosted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_rows_posted_total",
		Help:      "Specification ledger rows committed, by flow type.",
	}, []string{"flow_type"})

	postingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "posting_failures_total",
		Help:      "Rolled back posting units of work, by error kind.",
	}, []string{"kind"})

	postingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "posting_duration_seconds",
		Help:      "Wall time of a posting unit of work.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"mode"})

	catalogSyncTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_sync_tasks_total",
		Help:      "Catalog sync tasks handled, by result.",
	}, []string{"result"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePosting records one finished posting unit of work.
func ObservePosting(mode string, transactions int, ledgerRows int, started time.Time, errKind string) {
	postingDuration.WithLabelValues(mode).Observe(time.Since(started).Seconds())
	if errKind != "" {
		postingFailures.WithLabelValues(errKind).Inc()
		return
	}
	transactionsPosted.WithLabelValues(mode).Add(float64(transactions))
	ledgerRowsPosted.WithLabelValues("OUT").Add(float64(ledgerRows))
}

// LedgerRowPosted counts a ledger row written outside a sale (purchases).
func LedgerRowPosted(flowType string) {
	ledgerRowsPosted.WithLabelValues(flowType).Inc()
}

func CatalogSyncTask(result string) {
	catalogSyncTasks.WithLabelValues(result).Inc()
}
