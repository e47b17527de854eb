package playback

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_chunks_total",
		Help: "Total chunks scheduled for output",
	})

	metricScheduledSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_scheduled_seconds_total",
		Help: "Total seconds of audio scheduled",
	})

	metricCancels = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_cancels_total",
		Help: "Total hard-stop cancellations",
	})

	metricDecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_decode_failures_total",
		Help: "Chunks dropped because they failed to decode",
	})

	metricDiscardedAfterCancel = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_discarded_after_cancel_total",
		Help: "Chunks discarded past a cancellation cut-point",
	})

	metricOutOfOrder = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playback_out_of_order_total",
		Help: "Chunks dropped for violating sequence order",
	})
)
