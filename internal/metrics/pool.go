package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStatsCollector reads pgxpool statistics on every scrape.
type PoolStatsCollector struct {
	pool *pgxpool.Pool

	totalConns    *prometheus.Desc
	idleConns     *prometheus.Desc
	acquiredConns *prometheus.Desc
	maxConns      *prometheus.Desc
}

func NewPoolStatsCollector(pool *pgxpool.Pool) *PoolStatsCollector {
	return &PoolStatsCollector{
		pool:          pool,
		totalConns:    prometheus.NewDesc(prometheus.BuildFQName(namespace, "db_pool", "total_conns"), "Connections currently open in the pool.", nil, nil),
		idleConns:     prometheus.NewDesc(prometheus.BuildFQName(namespace, "db_pool", "idle_conns"), "Idle connections in the pool.", nil, nil),
		acquiredConns: prometheus.NewDesc(prometheus.BuildFQName(namespace, "db_pool", "acquired_conns"), "Connections currently acquired from the pool.", nil, nil),
		maxConns:      prometheus.NewDesc(prometheus.BuildFQName(namespace, "db_pool", "max_conns"), "Maximum connections allowed in the pool.", nil, nil),
	}
}

func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalConns
	ch <- c.idleConns
	ch <- c.acquiredConns
	ch <- c.maxConns
}

func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.totalConns, prometheus.GaugeValue, float64(stat.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.idleConns, prometheus.GaugeValue, float64(stat.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.acquiredConns, prometheus.GaugeValue, float64(stat.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.maxConns, prometheus.GaugeValue, float64(stat.MaxConns()))
}
