package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_state_transitions_total",
		Help: "Session state transitions",
	}, []string{"from", "to"})

	metricViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_transition_violations_total",
		Help: "Rejected state transitions",
	})

	metricTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_timeouts_total",
		Help: "Sessions closed by the inactivity watchdog",
	})
)
