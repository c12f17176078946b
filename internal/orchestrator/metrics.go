package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orch_turns_total",
		Help: "Turns completed by outcome",
	}, []string{"outcome"})

	metricTurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orch_turn_duration_ms",
		Help:    "Wall time of a turn from dispatch to audio_end",
		Buckets: prometheus.ExponentialBuckets(100, 1.6, 12),
	})

	metricFirstAudio = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orch_first_audio_ms",
		Help:    "Latency from dispatch to the first synthesized audio chunk",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 12),
	})

	metricSTTLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orch_stt_latency_ms",
		Help:    "Transcription call latency including pool wait",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 12),
	})

	metricSTTFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orch_stt_failures_total",
		Help: "Transcriptions that failed and were treated as no speech",
	})

	metricLLMFirstToken = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orch_llm_first_token_ms",
		Help:    "Latency until the first generated delta, retries included",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 12),
	})

	metricLLMRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orch_llm_retries_total",
		Help: "Generation attempts that failed and were retried",
	})

	metricLLMFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orch_llm_failures_total",
		Help: "Generations that exhausted their retries",
	})

	metricLLMStreamErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orch_llm_stream_errors_total",
		Help: "Generation streams that failed after producing text",
	})

	metricTTSRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orch_tts_requests_total",
		Help: "Sentences sent to synthesis",
	})

	metricTTSBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orch_tts_bytes_total",
		Help: "PCM bytes forwarded from synthesis",
	})

	metricPipelinePanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orch_pipeline_panics_total",
		Help: "Pipeline runs that panicked",
	})

	metricPoolInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orch_provider_pool_in_use",
		Help: "Provider calls currently holding a worker slot",
	})

	metricPoolRejects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orch_provider_pool_cancelled_total",
		Help: "Worker slot waits abandoned because the context ended",
	})
)
