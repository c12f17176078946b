package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricBackendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "memory_backend_errors_total",
	Help: "Persistent memory operations that failed and fell back to the cache",
}, []string{"op"})
