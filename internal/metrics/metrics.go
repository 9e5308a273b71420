// Package metrics exposes Prometheus counters for the posting pipeline.
// Best-effort context fetchers (news, trends) report failures here so that
// "failed" is distinguishable from "genuinely empty".
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is the interface the pipeline components record against
type Collector interface {
	RecordContextFetchFailure(source string)
	RecordImageFailure()
	RecordPublishSuccess()
	RecordPublishFailure(reason string)
	RecordPipelineFailure(stage string)
	RecordDispatchBatch(size int)
}

// PrometheusCollector implements Collector backed by a Prometheus registry
type PrometheusCollector struct {
	contextFetchFail *prometheus.CounterVec
	imageFail        prometheus.Counter
	publishSuccess   prometheus.Counter
	publishFail      *prometheus.CounterVec
	pipelineFail     *prometheus.CounterVec
	dispatchBatch    prometheus.Histogram
}

// NewCollector creates a collector and registers its metrics with reg
func NewCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		contextFetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autopost_context_fetch_failures_total",
			Help: "Best-effort context fetch failures by source (news, trend)",
		}, []string{"source"}),
		imageFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autopost_image_generation_failures_total",
			Help: "Image generation failures (non-fatal, post continues text-only)",
		}),
		publishSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autopost_publish_success_total",
			Help: "Successful publications",
		}),
		publishFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autopost_publish_failures_total",
			Help: "Publish attempts rejected by the backend, by classified reason",
		}, []string{"reason"}),
		pipelineFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autopost_pipeline_failures_total",
			Help: "Pipeline items that failed before publication, by stage",
		}, []string{"stage"}),
		dispatchBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autopost_dispatch_batch_size",
			Help:    "Number of slots claimed per dispatch invocation",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		}),
	}

	reg.MustRegister(c.contextFetchFail, c.imageFail, c.publishSuccess, c.publishFail, c.pipelineFail, c.dispatchBatch)
	return c
}

func (c *PrometheusCollector) RecordContextFetchFailure(source string) {
	c.contextFetchFail.WithLabelValues(source).Inc()
}

func (c *PrometheusCollector) RecordImageFailure() {
	c.imageFail.Inc()
}

func (c *PrometheusCollector) RecordPublishSuccess() {
	c.publishSuccess.Inc()
}

func (c *PrometheusCollector) RecordPublishFailure(reason string) {
	c.publishFail.WithLabelValues(reason).Inc()
}

func (c *PrometheusCollector) RecordPipelineFailure(stage string) {
	c.pipelineFail.WithLabelValues(stage).Inc()
}

func (c *PrometheusCollector) RecordDispatchBatch(size int) {
	c.dispatchBatch.Observe(float64(size))
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Noop is a Collector that discards everything; used in tests and the CLI
type Noop struct{}

func (Noop) RecordContextFetchFailure(string) {}
func (Noop) RecordImageFailure()              {}
func (Noop) RecordPublishSuccess()            {}
func (Noop) RecordPublishFailure(string)      {}
func (Noop) RecordPipelineFailure(string)     {}
func (Noop) RecordDispatchBatch(int)          {}

var _ Collector = (*PrometheusCollector)(nil)
var _ Collector = Noop{}
