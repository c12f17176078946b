package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_requests_total",
		Help: "Completion streams by final status",
	}, []string{"status"})

	metricFirstToken = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "llm_first_token_ms",
		Help:    "Latency from request to first streamed token",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 12),
	})
)
