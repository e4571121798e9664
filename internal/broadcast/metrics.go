package broadcast

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "homedock_hub_subscribers",
		Help: "Live state subscribers",
	})

	pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homedock_hub_polls_total",
		Help: "State polls by result",
	}, []string{"result"})

	pollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "homedock_hub_poll_duration_seconds",
		Help:    "Duration of state polls",
		Buckets: prometheus.DefBuckets,
	})

	fanoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homedock_hub_fanouts_total",
		Help: "State changes pushed to subscribers",
	})
)
