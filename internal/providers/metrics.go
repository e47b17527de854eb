package providers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAgentFirstToken = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "provider_agent_first_token_seconds",
		Help:    "Time from request to first response delta.",
		Buckets: prometheus.DefBuckets,
	})
	metricAgentFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provider_agent_failures_total",
		Help: "Agent requests that exhausted their retry budget.",
	})
	metricASRFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provider_asr_failures_total",
		Help: "Recognizer connections that exhausted their retry budget.",
	})
	metricASRCircuitOpen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provider_asr_circuit_rejections_total",
		Help: "Transcriptions rejected while the recognizer circuit was open.",
	})
	metricTTSFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provider_tts_failures_total",
		Help: "Synthesis requests that exhausted their retry budget.",
	})
)
