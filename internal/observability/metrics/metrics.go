// Package metrics provides Prometheus instrumentation for the HTTP service
// and the training worker pool.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/seqforge/seqnet/pkg/constants"
)

// Config configures the metrics endpoint. When Enabled is false the
// standalone server is not started; the handler can still be mounted on an
// existing router.
type Config struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Port      int    `json:"port" yaml:"port" mapstructure:"port"`
	Path      string `json:"path" yaml:"path" mapstructure:"path"`
	Namespace string `json:"namespace" yaml:"namespace" mapstructure:"namespace"`
	Subsystem string `json:"subsystem" yaml:"subsystem" mapstructure:"subsystem"`
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Port:      constants.DefaultMetricsPort,
		Path:      constants.DefaultMetricsPath,
		Namespace: constants.AppName,
		Subsystem: "server",
	}
}

// Metrics holds the Prometheus collectors for the application. A private
// registry keeps tests and embedded uses from clashing on the global one.
type Metrics struct {
	logger   *logrus.Logger
	registry *prometheus.Registry
	server   *http.Server
	config   *Config

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	generationsTotal    *prometheus.CounterVec
	generationDuration  *prometheus.HistogramVec
	jobsTotal           *prometheus.CounterVec
	jobDuration         *prometheus.HistogramVec
	jobsActive          prometheus.Gauge
	queueDepth          prometheus.Gauge
	snapshotsTotal      *prometheus.CounterVec
}

// New creates a Metrics instance with all collectors registered.
func New(config *Config, logger *logrus.Logger) (*Metrics, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	m := &Metrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		config:   config,
	}
	m.initCollectors()

	if err := m.register(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initCollectors() {
	namespace := m.config.Namespace
	subsystem := m.config.Subsystem

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dataset_generations_total",
			Help:      "Total number of dataset generations",
		},
		[]string{"generator", "status"},
	)

	m.generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dataset_generation_duration_seconds",
			Help:      "Dataset generation duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"generator"},
	)

	m.jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "jobs_total",
			Help:      "Total number of processed jobs",
		},
		[]string{"type", "status"},
	)

	m.jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "job_duration_seconds",
			Help:      "Job duration in seconds",
			Buckets:   []float64{0.1, 1, 10, 60, 300, 1800, 3600},
		},
		[]string{"type"},
	)

	m.jobsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "jobs_active",
			Help:      "Number of jobs currently running",
		},
	)

	m.queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "job_queue_depth",
			Help:      "Number of jobs waiting in the queue",
		},
	)

	m.snapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "model_snapshots_total",
			Help:      "Total number of model snapshots saved",
		},
		[]string{"format"},
	)
}

func (m *Metrics) register() error {
	collectors := []prometheus.Collector{
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.generationsTotal,
		m.generationDuration,
		m.jobsTotal,
		m.jobDuration,
		m.jobsActive,
		m.queueDepth,
		m.snapshotsTotal,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordGeneration records a completed dataset generation.
func (m *Metrics) RecordGeneration(generator, status string, duration time.Duration) {
	m.generationsTotal.WithLabelValues(generator, status).Inc()
	m.generationDuration.WithLabelValues(generator).Observe(duration.Seconds())
}

// RecordJob records a finished job with its terminal status.
func (m *Metrics) RecordJob(jobType, status string, duration time.Duration) {
	m.jobsTotal.WithLabelValues(jobType, status).Inc()
	m.jobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// SetActiveJobs sets the number of jobs currently running.
func (m *Metrics) SetActiveJobs(count float64) {
	m.jobsActive.Set(count)
}

// SetQueueDepth sets the number of jobs waiting in the queue.
func (m *Metrics) SetQueueDepth(count float64) {
	m.queueDepth.Set(count)
}

// RecordSnapshot records a model snapshot saved in the given format.
func (m *Metrics) RecordSnapshot(format string) {
	m.snapshotsTotal.WithLabelValues(format).Inc()
}

// Handler returns an HTTP handler exposing the registered collectors, for
// mounting on an existing router.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Start runs a standalone metrics server, used by the worker binary which
// has no HTTP API of its own. It returns immediately.
func (m *Metrics) Start(ctx context.Context) error {
	if !m.config.Enabled {
		m.logger.Info("Metrics endpoint disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	m.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", m.config.Port),
		Handler: mux,
	}

	m.logger.WithFields(logrus.Fields{
		"port": m.config.Port,
		"path": m.config.Path,
	}).Info("Starting metrics server")

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.WithError(err).Error("Metrics server error")
		}
	}()
	return nil
}

// Stop shuts down the standalone metrics server if one was started.
func (m *Metrics) Stop(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	m.logger.Info("Stopping metrics server")
	return m.server.Shutdown(ctx)
}
