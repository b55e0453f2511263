// Package telemetry provides structured logging and Prometheus metrics for the
// digital key service.
//
// All metrics are registered against the default Prometheus registry and are
// served on the side-channel HTTP port started by main.go (default 9090,
// configured with DKS_TELEMETRY_METRICS_PROMETHEUS_PORT). The endpoint path is
// always GET /metrics. It is not served by the Gin router so the scrape path
// stays off the public ingress and is not subject to rate limiting.
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/users/:id)
// rather than the raw URL to prevent unbounded label cardinality from
// user-supplied path segments.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Permission lifecycle metrics. The result label distinguishes successful
// operations from conflict and not-found rejections, which makes duplicate
// grant attempts directly observable:
//
//	rate(permission_grants_total{result="conflict"}[5m])
var (
	PermissionGrantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permission_grants_total",
			Help: "Total number of permission grant attempts, by result (granted, conflict, not_found, error).",
		},
		[]string{"result"},
	)

	PermissionRevocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permission_revocations_total",
			Help: "Total number of permission revocation attempts, by result (revoked, conflict, not_found, error).",
		},
		[]string{"result"},
	)
)

// Backup metrics — one write per key or permission snapshot.
var (
	BackupWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_writes_total",
			Help: "Total number of backup snapshot writes, by resource type (digital_key, permission) and result (ok, error).",
		},
		[]string{"resource", "result"},
	)
)

// Database connection pool gauges, polled every 30 seconds.
var (
	dbConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "db_connections_open",
		Help: "Number of open database connections (in use plus idle).",
	})

	dbConnectionsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "db_connections_in_use",
		Help: "Number of database connections currently in use.",
	})

	dbConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "db_connections_idle",
		Help: "Number of idle database connections.",
	})
)

// StartDBStatsCollector starts a goroutine that exports sql.DB pool statistics
// to Prometheus until the process exits.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			stats := db.Stats()
			dbConnectionsOpen.Set(float64(stats.OpenConnections))
			dbConnectionsInUse.Set(float64(stats.InUse))
			dbConnectionsIdle.Set(float64(stats.Idle))
		}
	}()
	slog.Debug("database pool stats collector started")
}
