// Package metric provides Prometheus metrics for DotVault.
package metric

import "github.com/prometheus/client_golang/prometheus"

// Stats is a point-in-time snapshot of application state reported
// through the Collector.
type Stats struct {
	TokensTotal    int
	SessionsActive int
	APIKeysTotal   int
}

// StatsFunc produces a Stats snapshot on each scrape.
type StatsFunc func() Stats

// Collector exports application state as gauges, sampling the
// provided StatsFunc on every scrape.
type Collector struct {
	stats StatsFunc

	tokensDesc   *prometheus.Desc
	sessionsDesc *prometheus.Desc
	apiKeysDesc  *prometheus.Desc
}

// NewCollector creates a collector backed by fn.
func NewCollector(fn StatsFunc) *Collector {
	return &Collector{
		stats: fn,
		tokensDesc: prometheus.NewDesc(
			namespace+"_tokens_total",
			"Number of registered tokens.",
			nil, nil,
		),
		sessionsDesc: prometheus.NewDesc(
			namespace+"_sessions_open",
			"Number of transfer sessions currently stored.",
			nil, nil,
		),
		apiKeysDesc: prometheus.NewDesc(
			namespace+"_api_keys_total",
			"Number of provisioned API keys.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tokensDesc
	ch <- c.sessionsDesc
	ch <- c.apiKeysDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.stats == nil {
		return
	}
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.tokensDesc, prometheus.GaugeValue, float64(s.TokensTotal))
	ch <- prometheus.MustNewConstMetric(c.sessionsDesc, prometheus.GaugeValue, float64(s.SessionsActive))
	ch <- prometheus.MustNewConstMetric(c.apiKeysDesc, prometheus.GaugeValue, float64(s.APIKeysTotal))
}
