// The worker binary runs a YAML job file through the training processor and
// exits non-zero when any job fails.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seqforge/seqnet/internal/datasets"
	"github.com/seqforge/seqnet/internal/observability/metrics"
	"github.com/seqforge/seqnet/internal/registry"
	"github.com/seqforge/seqnet/internal/storage"
	"github.com/seqforge/seqnet/internal/training"
	"github.com/seqforge/seqnet/pkg/constants"
	"github.com/seqforge/seqnet/pkg/models"
)

type WorkerConfig struct {
	WorkerID       string
	JobFile        string
	ReportFile     string
	Concurrency    int
	JobTimeout     time.Duration
	StorageBackend string
	StorageDir     string
	MetricsPort    int
	EnableMetrics  bool
	LogLevel       string
	LogFormat      string
}

func main() {
	config := parseFlags()

	logger := setupLogger(config.LogLevel, config.LogFormat)

	if config.JobFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -jobs is required")
		flag.Usage()
		os.Exit(2)
	}

	jobFile, err := training.LoadJobFile(config.JobFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load job file")
	}

	logger.WithFields(logrus.Fields{
		"workerID":    config.WorkerID,
		"jobFile":     config.JobFile,
		"jobs":        len(jobFile.Jobs),
		"concurrency": config.Concurrency,
	}).Info("Starting seqnet worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Artifact store and model registry for jobs that save or load models
	storageConfig := storage.DefaultConfig(config.StorageDir)
	storageConfig.Backend = config.StorageBackend
	store, err := storage.NewArtifactStore(storageConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create artifact store")
	}
	if err := store.Connect(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to connect artifact store")
	}
	defer store.Close()

	reg, err := registry.NewRegistry(store, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create model registry")
	}

	var m *metrics.Metrics
	if config.EnableMetrics {
		metricsConfig := metrics.DefaultConfig()
		metricsConfig.Port = config.MetricsPort
		m, err = metrics.New(metricsConfig, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create metrics collector")
		}
		go func() {
			if err := m.Start(ctx); err != nil {
				logger.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	processor := training.NewProcessor(&training.Config{
		Concurrency: config.Concurrency,
		QueueSize:   len(jobFile.Jobs),
		JobTimeout:  config.JobTimeout,
	}, datasets.NewFactory(logger), reg, m, logger)

	submitted := make([]string, 0, len(jobFile.Jobs))
	for _, job := range jobFile.Jobs {
		queued, err := processor.SubmitJob(job)
		if err != nil {
			logger.WithError(err).WithField("jobID", job.ID).Fatal("Failed to queue job")
		}
		submitted = append(submitted, queued.ID)
	}

	// Close the queue so the workers exit once every job has run.
	processor.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := processor.Start(ctx); err != nil {
			logger.WithError(err).Error("Job processor stopped with error")
		}
	}()

	// Monitor worker health
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.WithFields(logrus.Fields{
					"activeJobs":    processor.ActiveJobs(),
					"completedJobs": processor.CompletedJobs(),
					"failedJobs":    processor.FailedJobs(),
				}).Debug("Worker health check")
			}
		}
	}()

	select {
	case <-done:
	case <-sigChan:
		logger.Info("Shutdown signal received, cancelling jobs")
		cancel()
		<-done
	}

	if m != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Error("Metrics shutdown failed")
		}
		shutdownCancel()
	}

	failed := summarize(processor, submitted, logger)

	if config.ReportFile != "" {
		if err := writeReport(processor, submitted, config.ReportFile); err != nil {
			logger.WithError(err).Error("Failed to write report")
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}

// summarize logs the outcome of every job and returns the failure count.
func summarize(processor *training.Processor, jobIDs []string, logger *logrus.Logger) int {
	failed := 0
	for _, jobID := range jobIDs {
		job, err := processor.Get(jobID)
		if err != nil {
			logger.WithError(err).WithField("jobID", jobID).Error("Job disappeared")
			failed++
			continue
		}

		entry := logger.WithFields(logrus.Fields{
			"jobID":   job.ID,
			"jobType": job.Type,
			"status":  job.Status,
		})
		switch job.Status {
		case constants.JobStatusCompleted:
			entry.Info("Job completed")
		default:
			entry.WithField("error", job.Error).Error("Job did not complete")
			failed++
		}
	}

	logger.WithFields(logrus.Fields{
		"jobs":      len(jobIDs),
		"completed": len(jobIDs) - failed,
		"failed":    failed,
	}).Info("Worker finished")

	return failed
}

// writeReport dumps the final state of every job as indented JSON, to stdout
// when path is "-".
func writeReport(processor *training.Processor, jobIDs []string, path string) error {
	jobs := make([]*models.Job, 0, len(jobIDs))
	for _, jobID := range jobIDs {
		job, err := processor.Get(jobID)
		if err != nil {
			return err
		}
		jobs = append(jobs, job)
	}

	out := os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(jobs)
}

func parseFlags() *WorkerConfig {
	config := &WorkerConfig{}

	flag.StringVar(&config.WorkerID, "worker-id", generateWorkerID(), "Unique worker ID")
	flag.StringVar(&config.JobFile, "jobs", "", "Path to the YAML job file (required)")
	flag.StringVar(&config.ReportFile, "report", "", "Write a JSON job report to this path, - for stdout")
	flag.IntVar(&config.Concurrency, "concurrency", constants.DefaultWorkerConcurrency, "Number of concurrent jobs")
	flag.DurationVar(&config.JobTimeout, "job-timeout", constants.DefaultJobTimeout, "Per job timeout")
	flag.StringVar(&config.StorageBackend, "storage", constants.StorageBackendFile, "Artifact store backend (file, s3, redis)")
	flag.StringVar(&config.StorageDir, "storage-dir", "data", "Directory for the file artifact store")
	flag.IntVar(&config.MetricsPort, "metrics-port", constants.DefaultMetricsPort, "Prometheus metrics port")
	flag.BoolVar(&config.EnableMetrics, "enable-metrics", false, "Expose Prometheus metrics while running")
	flag.StringVar(&config.LogLevel, "log-level", constants.DefaultLogLevel, "Log level")
	flag.StringVar(&config.LogFormat, "log-format", constants.DefaultLogFormat, "Log format")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -jobs <file> [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nRuns the jobs in a YAML job file and exits when they finish.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	return config
}

func setupLogger(level, format string) *logrus.Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func generateWorkerID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}
