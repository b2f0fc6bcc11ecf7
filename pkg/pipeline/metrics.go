package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// uploadsTotal tracks upload outcomes ("success" or the failure kind)
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ayda_uploads_total",
			Help: "Total number of document uploads by outcome",
		},
		[]string{"outcome"},
	)

	uploadsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ayda_uploads_in_flight",
			Help: "Number of uploads currently running",
		},
	)

	uploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ayda_upload_duration_seconds",
			Help:    "Duration of single document uploads",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	embedBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ayda_embed_batches_total",
			Help: "Total number of embed batch calls by result",
		},
		[]string{"result"},
	)

	failureLogs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ayda_failure_logs_total",
			Help: "Total number of failure logs by result",
		},
		[]string{"result"}, // "written", "error"
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ayda_runs_total",
			Help: "Total number of import runs by final stage",
		},
		[]string{"status"},
	)
)
