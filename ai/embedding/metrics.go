package embedding

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "firemark",
		Subsystem: "embedding",
		Name:      "provider_failures_total",
		Help:      "Embedding provider call failures by provider and failure kind.",
	}, []string{"provider", "kind"})

	providerSuccesses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "firemark",
		Subsystem: "embedding",
		Name:      "provider_successes_total",
		Help:      "Successful embedding batches by provider.",
	}, []string{"provider"})

	failOpenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "firemark",
		Subsystem: "embedding",
		Name:      "fail_open_total",
		Help:      "Batches that fell open to zero vectors after pool exhaustion.",
	})
)
