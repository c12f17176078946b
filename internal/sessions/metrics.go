package sessions

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sessions_active",
		Help: "Currently connected sessions",
	})

	metricOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessions_opened_total",
		Help: "Session open attempts by result",
	}, []string{"result"})

	metricUtterancesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessions_utterances_dropped_total",
		Help: "Utterances that reached a boundary while a turn held the floor",
	})
)
