package interrupt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricBargeIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interrupt_barge_ins_total",
		Help: "User barge-ins that cancelled assistant playback.",
	})
	metricBargeInLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interrupt_barge_in_seconds",
		Help:    "Time from playback start to the barge-in decision.",
		Buckets: prometheus.DefBuckets,
	})
)
