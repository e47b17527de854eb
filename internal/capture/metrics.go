package capture

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_blocks_total",
		Help: "Total capture blocks fed to the segmenter",
	})

	metricStarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_speech_starts_total",
		Help: "Total local VAD speech start boundaries",
	})

	metricEnds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_speech_ends_total",
		Help: "Total local VAD speech end boundaries",
	})

	metricUtteranceSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "capture_utterance_seconds",
		Help:    "Closed utterance durations in seconds",
		Buckets: prometheus.ExponentialBuckets(0.25, 1.6, 10),
	})
)
