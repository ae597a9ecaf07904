// Package metrics exposes Prometheus collectors for the deployment pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the prometheus collectors for publish/deploy operations.
type Metrics struct {
	registry *prometheus.Registry

	publishesTotal     *prometheus.CounterVec
	deploysTotal       *prometheus.CounterVec
	compileFailures    prometheus.Counter
	publishDuration    prometheus.Histogram
	deployBatchSize    prometheus.Histogram
	functionsPublished prometheus.Histogram
}

var defaultBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// New creates the metrics registry and registers all collectors.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		publishesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Publish operations by result.",
		}, []string{"result"}),
		deploysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deploys_total",
			Help:      "Deploy operations by result.",
		}, []string{"result"}),
		compileFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compile_failures_total",
			Help:      "Function definitions rejected by the compiler during publish.",
		}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_ms",
			Help:      "End-to-end publish duration in milliseconds.",
			Buckets:   defaultBuckets,
		}),
		deployBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deploy_batch_size",
			Help:      "Number of function definitions per deploy batch.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}),
		functionsPublished: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "functions_published",
			Help:      "Number of functions written per publish snapshot.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
	}

	registry.MustRegister(
		m.publishesTotal,
		m.deploysTotal,
		m.compileFailures,
		m.publishDuration,
		m.deployBatchSize,
		m.functionsPublished,
	)
	return m
}

// ObservePublish records one publish attempt.
func (m *Metrics) ObservePublish(result string, published int, skipped int, elapsed time.Duration) {
	m.publishesTotal.WithLabelValues(result).Inc()
	m.publishDuration.Observe(float64(elapsed.Milliseconds()))
	m.functionsPublished.Observe(float64(published))
	if skipped > 0 {
		m.compileFailures.Add(float64(skipped))
	}
}

// ObserveDeploy records one deploy attempt.
func (m *Metrics) ObserveDeploy(result string, batchSize int) {
	m.deploysTotal.WithLabelValues(result).Inc()
	m.deployBatchSize.Observe(float64(batchSize))
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
