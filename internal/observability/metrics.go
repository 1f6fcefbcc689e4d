// Package observability exports store statistics as Prometheus instruments.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the store. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Memories           *prometheus.GaugeVec
	WorkingMemories    prometheus.Gauge
	MaintenanceRuns    *prometheus.CounterVec
	EmbeddingFallbacks prometheus.Counter
	SnapshotSaves      *prometheus.CounterVec
	RetrieveLatency    prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewMetrics registers the instruments on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(namespace, reg)
	m.gatherer = reg
	return m
}

// NewMetricsWith registers the instruments on reg.
func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Memories: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memories",
			Help:      "Stored memories by primary tier.",
		}, []string{"tier"}),
		WorkingMemories: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "working_memories",
			Help:      "Memories currently in the working overlay.",
		}),
		MaintenanceRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maintenance_runs_total",
			Help:      "Scheduled maintenance runs by task and outcome.",
		}, []string{"task", "outcome"}),
		EmbeddingFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_fallbacks_total",
			Help:      "Embeddings replaced by a fallback vector after a provider failure.",
		}),
		SnapshotSaves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_saves_total",
			Help:      "Snapshot saves by outcome.",
		}, []string{"outcome"}),
		RetrieveLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieve_latency_seconds",
			Help:      "Latency of similarity retrieval including query embedding.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
}

func (m *Metrics) SetTierCount(tier string, n int) {
	if m == nil {
		return
	}
	m.Memories.WithLabelValues(tier).Set(float64(n))
}

func (m *Metrics) SetWorking(n int) {
	if m == nil {
		return
	}
	m.WorkingMemories.Set(float64(n))
}

func (m *Metrics) ObserveMaintenance(task string, err error) {
	if m == nil {
		return
	}
	m.MaintenanceRuns.WithLabelValues(task, outcome(err)).Inc()
}

func (m *Metrics) ObserveFallback(error) {
	if m == nil {
		return
	}
	m.EmbeddingFallbacks.Inc()
}

func (m *Metrics) ObserveSave(err error) {
	if m == nil {
		return
	}
	m.SnapshotSaves.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) ObserveRetrieve(d time.Duration) {
	if m == nil {
		return
	}
	m.RetrieveLatency.Observe(d.Seconds())
}

// Handler serves the registry the metrics were created on.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
