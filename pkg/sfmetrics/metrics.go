// Package sfmetrics declares the Prometheus collectors sshvfs publishes,
// modeled on shellcn's pkg/metrics.
package sfmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sshvfs_connect_attempts_total",
		Help: "SSH connect attempts by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	ActiveTransports = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sshvfs_active_transports",
		Help: "Number of Transport entries currently registered.",
	})

	PoolInUse = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sshvfs_pool_sessions_in_use",
		Help: "SFTP sessions currently borrowed, by endpoint.",
	}, []string{"endpoint"})

	PoolWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sshvfs_pool_wait_seconds",
		Help:    "Time spent waiting to borrow an SFTP session.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	BytesUploaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sshvfs_bytes_uploaded_total",
		Help: "Bytes committed through the write pipeline.",
	}, []string{"endpoint"})

	BytesRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sshvfs_bytes_read_total",
		Help: "Bytes returned through the read path.",
	}, []string{"endpoint", "path_kind"})

	CommandFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sshvfs_command_fallback_total",
		Help: "Times the command-exec read fast path fell back to SFTP.",
	}, []string{"endpoint"})
)
