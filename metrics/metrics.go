// Package metrics exposes Prometheus metrics for the deployment pipeline on
// a dedicated listener.
package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector observes pipeline step outcomes. It satisfies pipeline.Observer.
type Collector struct {
	stepDuration *prometheus.HistogramVec
	stepOutcomes *prometheus.CounterVec
	runInfo      *prometheus.GaugeVec
	registry     *prometheus.Registry
}

// NewCollector creates a collector registered under the given namespace.
func NewCollector(namespace string) *Collector {
	ns := strings.ReplaceAll(namespace, "-", "_")
	registry := prometheus.NewRegistry()

	c := &Collector{
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "step_duration_seconds",
			Help:      "Wall time of each provisioning step.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 3, 10),
		}, []string{"step"}),
		stepOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "step_outcomes_total",
			Help:      "Provisioning step outcomes by status.",
		}, []string{"step", "status"}),
		runInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "run_info",
			Help:      "Identity of the current deployment run, always 1.",
		}, []string{"run_id", "version"}),
		registry: registry,
	}

	registry.MustRegister(c.stepDuration, c.stepOutcomes, c.runInfo)
	return c
}

// SetRunInfo marks the active deployment run on the info gauge.
func (c *Collector) SetRunInfo(runID, version string) {
	c.runInfo.WithLabelValues(runID, version).Set(1)
}

// ObserveStep records one step outcome.
func (c *Collector) ObserveStep(step, status string, took time.Duration) {
	c.stepDuration.WithLabelValues(step).Observe(took.Seconds())
	c.stepOutcomes.WithLabelValues(step, status).Inc()
}

// MetricsServer serves the collector's registry over HTTP.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server on listenAddr for the given collector.
func New(collector *Collector, listenAddr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(collector.registry, promhttp.HandlerOpts{}))
	return &MetricsServer{
		srv: &http.Server{
			Addr:         listenAddr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe blocks serving metrics.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the listener.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
