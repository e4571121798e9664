package deploy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deploysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homedock_deploys_total",
			Help: "Deploy attempts by result",
		},
		[]string{"result"},
	)

	deployDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "homedock_deploy_duration_seconds",
			Help:    "Duration of deploy attempts",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	stageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homedock_deploy_stage_failures_total",
			Help: "Deploy failures by failing state",
		},
		[]string{"stage"},
	)
)
