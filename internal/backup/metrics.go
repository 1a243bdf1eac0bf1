package backup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

var (
	backupRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ccsa_backup_runs_total",
			Help: "Плановые резервные копии по результату",
		},
		[]string{"result"},
	)

	backupLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ccsa_backup_last_success_timestamp_seconds",
		Help: "Время последней успешной плановой копии (unix)",
	})

	backupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ccsa_backup_duration_seconds",
		Help:    "Длительность плановой копии",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)
