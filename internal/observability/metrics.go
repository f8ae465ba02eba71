package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fishtank_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the loader.
type Metrics struct {
	MessagesConsumed prometheus.Counter
	TransformErrors  prometheus.Counter
	DeadLettered     prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Warehouse metrics.
	FactsLoaded         *prometheus.CounterVec // labels: table
	DimensionCandidates *prometheus.CounterVec // labels: table
	DimensionNewKeys    *prometheus.CounterVec // labels: table
	MissingRelations    *prometheus.CounterVec // labels: table
	KnownKeyCache       *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.MessagesConsumed,
		m.TransformErrors,
		m.DeadLettered,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.FactsLoaded,
		m.DimensionCandidates,
		m.DimensionNewKeys,
		m.MissingRelations,
		m.KnownKeyCache,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total messages read from the source topic.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Total messages rejected during transformation.",
		}),
		DeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_lettered_total",
			Help:      "Total rejected messages published to the dead-letter topic.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-transform-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		FactsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facts_loaded_total",
			Help:      "Fact rows written by table.",
		}, []string{"table"}),
		DimensionCandidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dimension_candidate_keys_total",
			Help:      "Distinct candidate keys checked against a dimension table.",
		}, []string{"table"}),
		DimensionNewKeys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dimension_new_keys_total",
			Help:      "Keys appended to a dimension table.",
		}, []string{"table"}),
		MissingRelations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dimension_missing_relation_total",
			Help:      "Existence queries that found no dimension table yet.",
		}, []string{"table"}),
		KnownKeyCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "known_key_cache_total",
			Help:      "Known-key cache lookups by result.",
		}, []string{"result"}),
	}
}
