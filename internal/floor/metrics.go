package floor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floor_state_transitions_total",
		Help: "Session state transitions",
	}, []string{"from", "to"})

	metricGateRejects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "floor_gate_rejects_total",
		Help: "Utterances rejected because a turn or playback was in progress",
	})
)
