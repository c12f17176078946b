package outbound

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbound_events_enqueued_total",
		Help: "Outbound events enqueued by kind",
	}, []string{"kind"})

	metricWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbound_events_written_total",
		Help: "Outbound events written to the transport",
	})

	metricDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbound_events_dropped_total",
		Help: "Events pushed after the session queue closed",
	})
)
