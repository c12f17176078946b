package stt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAudioBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stt_audio_bytes_total",
		Help: "Utterance PCM bytes sent for transcription",
	})

	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_requests_total",
		Help: "Transcription requests by status",
	}, []string{"status"})

	metricLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stt_request_ms",
		Help:    "Transcription request latency in milliseconds",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 12),
	})
)
