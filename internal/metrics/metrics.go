// Package metrics exposes indexer counters on a dedicated prometheus registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rpattn/entityindexer/internal/domain"
)

// Metrics holds the indexer collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	blocksProcessed  *prometheus.CounterVec
	requests         *prometheus.CounterVec
	blockDuration    prometheus.Histogram
	lastIndexedBlock prometheus.Gauge
	publishFailures  prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry together
// with the go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		blocksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entity_indexer_blocks_total",
			Help: "Blocks handled by the processor, by result.",
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entity_indexer_requests_total",
			Help: "Change requests by entity type, action and outcome.",
		}, []string{"entity_type", "action", "status"}),
		blockDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "entity_indexer_block_duration_seconds",
			Help:    "Time to decode, validate and commit one block.",
			Buckets: prometheus.DefBuckets,
		}),
		lastIndexedBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "entity_indexer_last_indexed_block",
			Help: "Number of the last committed block.",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entity_indexer_publish_failures_total",
			Help: "Blocks whose change events could not be published.",
		}),
	}
	m.registry.MustRegister(
		m.blocksProcessed,
		m.requests,
		m.blockDuration,
		m.lastIndexedBlock,
		m.publishFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// ObserveBlock records a committed block.
func (m *Metrics) ObserveBlock(result domain.BlockResult, started time.Time) {
	if m == nil {
		return
	}
	m.blocksProcessed.WithLabelValues("committed").Inc()
	m.blockDuration.Observe(time.Since(started).Seconds())
	m.lastIndexedBlock.Set(float64(result.BlockNumber))
	for _, outcome := range result.Outcomes {
		entityType := string(outcome.EntityType)
		if entityType == "" {
			entityType = "unknown"
		}
		action := string(outcome.Action)
		if action == "" {
			action = "unknown"
		}
		m.requests.WithLabelValues(entityType, action, string(outcome.Status)).Inc()
	}
}

// ObserveFailedBlock records a block rolled back on storage failure.
func (m *Metrics) ObserveFailedBlock(started time.Time) {
	if m == nil {
		return
	}
	m.blocksProcessed.WithLabelValues("failed").Inc()
	m.blockDuration.Observe(time.Since(started).Seconds())
}

// ObservePublishFailure records an event feed failure.
func (m *Metrics) ObservePublishFailure() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}
