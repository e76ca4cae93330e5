// Package metrics provides Prometheus metrics for the blog persistence service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "blogpress"

// Collectors groups the service metrics. A nil *Collectors is valid and records nothing.
type Collectors struct {
	// RegistryWrites counts registry write attempts by status.
	RegistryWrites *prometheus.CounterVec
	// Backups counts backup operations by target (local, s3) and status.
	Backups *prometheus.CounterVec
	// BackupsPruned counts backups removed by retention.
	BackupsPruned *prometheus.CounterVec
	// ArticleFiles counts article file operations by operation and status.
	ArticleFiles *prometheus.CounterVec
	// ValidationRejections counts payloads rejected before any write.
	ValidationRejections *prometheus.CounterVec
	// ConsistencyIssues reports the issues found by the last consistency check.
	ConsistencyIssues *prometheus.GaugeVec
	// HTTPRequests counts handled requests.
	HTTPRequests *prometheus.CounterVec
	// HTTPDuration measures request handling duration.
	HTTPDuration *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)

	return &Collectors{
		RegistryWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_writes_total",
				Help:      "Total number of registry write attempts",
			},
			[]string{"status"},
		),
		Backups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_backups_total",
				Help:      "Total number of registry backups",
			},
			[]string{"target", "status"},
		),
		BackupsPruned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_backups_pruned_total",
				Help:      "Total number of registry backups removed by retention",
			},
			[]string{"target"},
		),
		ArticleFiles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "article_files_total",
				Help:      "Total number of article file operations",
			},
			[]string{"operation", "status"},
		),
		ValidationRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_rejections_total",
				Help:      "Total number of payloads rejected by validation",
			},
			[]string{"operation"},
		),
		ConsistencyIssues: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "consistency_issues",
				Help:      "Issues found by the last registry consistency check",
			},
			[]string{"kind"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

// RecordRegistryWrite records a registry write outcome.
func (c *Collectors) RecordRegistryWrite(status string) {
	if c == nil {
		return
	}
	c.RegistryWrites.WithLabelValues(status).Inc()
}

// RecordBackup records a backup outcome for target.
func (c *Collectors) RecordBackup(target, status string) {
	if c == nil {
		return
	}
	c.Backups.WithLabelValues(target, status).Inc()
}

// RecordPruned records n backups removed from target.
func (c *Collectors) RecordPruned(target string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.BackupsPruned.WithLabelValues(target).Add(float64(n))
}

// RecordArticleFile records an article file operation.
func (c *Collectors) RecordArticleFile(operation, status string) {
	if c == nil {
		return
	}
	c.ArticleFiles.WithLabelValues(operation, status).Inc()
}

// RecordRejection records a payload rejected by validation.
func (c *Collectors) RecordRejection(operation string) {
	if c == nil {
		return
	}
	c.ValidationRejections.WithLabelValues(operation).Inc()
}

// SetConsistencyIssues replaces the per-kind issue gauges.
func (c *Collectors) SetConsistencyIssues(counts map[string]int) {
	if c == nil {
		return
	}
	c.ConsistencyIssues.Reset()
	for kind, n := range counts {
		c.ConsistencyIssues.WithLabelValues(kind).Set(float64(n))
	}
}

// RecordRequest records a handled HTTP request.
func (c *Collectors) RecordRequest(method, route, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(route).Observe(duration.Seconds())
}
