package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolCollector reads pgxpool statistics at scrape time instead of
// sampling them on a timer.
type PoolCollector struct {
	pool *pgxpool.Pool

	acquired  *prometheus.Desc
	idle      *prometheus.Desc
	total     *prometheus.Desc
	maxConns  *prometheus.Desc
	waitCount *prometheus.Desc
}

// NewPoolCollector builds a collector for the given pool. Register it
// with prometheus.MustRegister.
func NewPoolCollector(pool *pgxpool.Pool) *PoolCollector {
	return &PoolCollector{
		pool: pool,
		acquired: prometheus.NewDesc(
			namespace+"_db_connections_acquired",
			"Connections currently acquired from the pool.",
			nil, nil,
		),
		idle: prometheus.NewDesc(
			namespace+"_db_connections_idle",
			"Idle connections in the pool.",
			nil, nil,
		),
		total: prometheus.NewDesc(
			namespace+"_db_connections_total",
			"Total connections managed by the pool.",
			nil, nil,
		),
		maxConns: prometheus.NewDesc(
			namespace+"_db_connections_max",
			"Configured maximum pool size.",
			nil, nil,
		),
		waitCount: prometheus.NewDesc(
			namespace+"_db_acquire_wait_total",
			"Cumulative acquires that had to wait for a connection.",
			nil, nil,
		),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquired
	ch <- c.idle
	ch <- c.total
	ch <- c.maxConns
	ch <- c.waitCount
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(st.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(st.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(st.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.maxConns, prometheus.GaugeValue, float64(st.MaxConns()))
	ch <- prometheus.MustNewConstMetric(c.waitCount, prometheus.CounterValue, float64(st.EmptyAcquireCount()))
}
