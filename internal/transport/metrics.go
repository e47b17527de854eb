package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transport_connections_total",
		Help: "Accepted voice channel connections.",
	})
	metricReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transport_reconnect_attempts_total",
		Help: "Client reconnect attempts.",
	})
	metricFramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transport_frames_sent_total",
		Help: "Frames written to the wire.",
	})
	metricFramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transport_frames_received_total",
		Help: "Valid frames read from the wire.",
	})
	metricProtocolViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transport_protocol_violations_total",
		Help: "Inbound frames rejected by validation or the sequence window.",
	})
	metricAuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transport_auth_failures_total",
		Help: "Connections rejected before upgrade for bad credentials.",
	})
)
