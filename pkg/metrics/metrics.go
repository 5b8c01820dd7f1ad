package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TradesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trades_executed_total",
		Help: "Total number of trade executions",
	}, []string{"side", "status"})

	TradeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trade_duration_seconds",
		Help:    "Duration of trade execution including the ledger transaction",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logins_total",
		Help: "Total number of login attempts",
	}, []string{"status"})

	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registrations_total",
		Help: "Total number of registration attempts",
	}, []string{"status"})

	QuoteLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_lookups_total",
		Help: "Total number of quote lookups against the quote source",
	}, []string{"status"})

	DatabaseQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "database_queries_total",
		Help: "Total number of database queries",
	}, []string{"query_type", "status"})

	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "database_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query_type"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "active_sessions",
		Help: "Sessions established and not yet logged out; expiry is not tracked",
	})
)

func RecordTrade(side, status string) {
	TradesExecuted.WithLabelValues(side, status).Inc()
}

func RecordLogin(status string) {
	Logins.WithLabelValues(status).Inc()
}

func RecordRegistration(status string) {
	Registrations.WithLabelValues(status).Inc()
}

func RecordQuoteLookup(status string) {
	QuoteLookups.WithLabelValues(status).Inc()
}

func RecordDatabaseQuery(queryType, status string, duration float64) {
	DatabaseQueries.WithLabelValues(queryType, status).Inc()
	DatabaseQueryDuration.WithLabelValues(queryType).Observe(duration)
}

type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{
		start: time.Now(),
	}
}

func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
