package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricUtterances = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_utterances_total",
		Help: "Closed utterances accepted into the response pipeline.",
	})
	metricTurnSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orchestrator_turn_seconds",
		Help:    "Utterance close to turn completion.",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16},
	})
	metricTurnFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_turn_failures_total",
		Help: "Turns abandoned because a collaborator was unavailable.",
	})
	metricDowngrades = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_text_only_downgrades_total",
		Help: "Turns that continued text-only after synthesis failed.",
	})
)
