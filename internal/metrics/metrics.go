// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the collectors the pipeline mutates during a run.
type Metrics struct {
	registry *prometheus.Registry

	// UnitsInFlight tracks batches holding a global permit: incremented
	// on acquire, decremented on release.
	UnitsInFlight prometheus.Gauge
	// BatchesConsumed counts batches each worker pulled off its channel.
	BatchesConsumed *prometheus.CounterVec
	// WorkerFailures counts error reports emitted by producers/workers.
	WorkerFailures prometheus.Counter
	// ShardsTotal records the shard set size for the run.
	ShardsTotal prometheus.Gauge
}

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		UnitsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trainer",
			Name:      "units_in_flight",
			Help:      "Training batches currently holding a global permit.",
		}),
		BatchesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trainer",
			Name:      "batches_consumed_total",
			Help:      "Batches dequeued per worker slot.",
		}, []string{"slot"}),
		WorkerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trainer",
			Name:      "worker_failures_total",
			Help:      "Error reports emitted by producers and workers.",
		}),
		ShardsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trainer",
			Name:      "shards_total",
			Help:      "Number of shard entries assigned to the run.",
		}),
	}
	m.registry.MustRegister(m.UnitsInFlight, m.BatchesConsumed, m.WorkerFailures, m.ShardsTotal)
	return m
}

// Serve exposes /metrics on addr in a background goroutine. Errors are
// logged, not fatal.
func (m *Metrics) Serve(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	go func() {
		logger.Info("Serving metrics", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()
}
