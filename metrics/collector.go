// Package metrics exposes Prometheus metrics for runs, nodes and the REST API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Tsinling0525/canvasflow/engine"
	"github.com/Tsinling0525/canvasflow/model"
)

// Collector records engine events and HTTP requests on its own registry.
type Collector struct {
	registry *prometheus.Registry

	runsTotal    *prometheus.CounterVec
	runDuration  prometheus.Histogram
	runsInFlight prometheus.Gauge
	nodesTotal   *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	logger *zap.Logger
}

func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of workflow runs by final status",
		}, []string{"status"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		}),
		runsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Workflow runs currently executing",
		}),
		nodesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of settled nodes by type and status",
		}, []string{"node_type", "status"}),
		nodeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node_type"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func (c *Collector) RunStarted(runID string, wf *model.Workflow) {
	c.runsInFlight.Inc()
}

func (c *Collector) NodeStarted(runID string, node model.Node) {}

func (c *Collector) NodeSettled(runID string, e model.NodeResultEntry) {
	c.nodesTotal.WithLabelValues(string(e.NodeType), string(e.Status)).Inc()
	if e.Status != model.EntrySkipped {
		c.nodeDuration.WithLabelValues(string(e.NodeType)).Observe(float64(e.DurationMs) / 1000)
	}
}

func (c *Collector) RunFinished(rec *model.RunRecord) {
	c.runsInFlight.Dec()
	c.runsTotal.WithLabelValues(string(rec.Status)).Inc()
	c.runDuration.Observe(float64(rec.DurationMs) / 1000)
	c.logger.Debug("run observed", zap.String("run_id", rec.ID), zap.String("status", string(rec.Status)))
}

var _ engine.Observer = (*Collector)(nil)
