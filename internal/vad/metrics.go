package vad

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vad_frames_total",
		Help: "Total inbound audio frames classified",
	})

	metricMutedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vad_muted_frames_total",
		Help: "Frames dropped while synthesized speech was playing",
	})

	metricOnsets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vad_onsets_total",
		Help: "Total speech onset events",
	})

	metricBoundaries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vad_boundaries_total",
		Help: "Utterances closed and handed off for dispatch",
	})

	metricDiscards = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vad_discards_total",
		Help: "Utterances closed below the minimum size and dropped",
	})

	metricUtteranceBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vad_utterance_bytes",
		Help:    "Size of dispatched utterances in bytes",
		Buckets: prometheus.ExponentialBuckets(8000, 2, 10),
	})
)
