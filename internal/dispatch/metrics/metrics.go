package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the action dispatcher.
type Metrics struct {
	ActionsTotal   *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec
	BatchSize      prometheus.Histogram
}

// New creates and registers all dispatcher metrics.
func New() *Metrics {
	return &Metrics{
		ActionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "equilex_actions_total",
			Help: "Total submitted actions by type and outcome",
		}, []string{"action", "outcome"}),
		ActionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "equilex_action_duration_seconds",
			Help:    "Action execution time by type",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "equilex_batch_size",
			Help:    "Number of sub-actions per submitted batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 256},
		}),
	}
}
