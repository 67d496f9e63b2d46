package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	providerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "innsync",
			Name:      "provider_calls_total",
			Help:      "External inventory provider calls by operation.",
		},
		[]string{"operation"},
	)

	blocksSynced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "innsync",
			Name:      "blocks_synced_total",
			Help:      "Refresh blocks processed by sync kind.",
		},
		[]string{"kind"},
	)

	syncErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "innsync",
			Name:      "sync_errors_total",
			Help:      "Per-block sync failures by sync kind.",
		},
		[]string{"kind"},
	)

	searches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "innsync",
			Name:      "searches_total",
			Help:      "Availability and package searches by engine.",
		},
		[]string{"engine"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(providerCalls, blocksSynced, syncErrors, searches)
	})
}

// IncProviderCall increments the provider call counter for an operation label.
func IncProviderCall(operation string) {
	providerCalls.WithLabelValues(operation).Inc()
}

// IncBlockSynced increments the processed-block counter for a sync kind.
func IncBlockSynced(kind string) {
	blocksSynced.WithLabelValues(kind).Inc()
}

// IncSyncError increments the per-block failure counter for a sync kind.
func IncSyncError(kind string) {
	syncErrors.WithLabelValues(kind).Inc()
}

// IncSearch increments the search counter for a query engine.
func IncSearch(engine string) {
	searches.WithLabelValues(engine).Inc()
}
