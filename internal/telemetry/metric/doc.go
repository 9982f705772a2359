// Package metric provides Prometheus metrics for DotVault.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: metric registry and HTTP handler
//   - collector.go: runtime collector for process-level gauges
//
// Metrics include:
//
//   - Transfer lifecycle counters (begun, completed, failed)
//   - Key rotation counters
//   - HTTP request latency histograms
//   - Rate limit rejections
//   - Storage statistics (registered by the storage engine)
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
