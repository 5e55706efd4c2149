package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seqforge/seqnet/internal/datasets"
	"github.com/seqforge/seqnet/internal/observability/metrics"
	"github.com/seqforge/seqnet/internal/registry"
	"github.com/seqforge/seqnet/internal/server"
	"github.com/seqforge/seqnet/internal/storage"
	"github.com/seqforge/seqnet/internal/training"
)

func main() {
	flags := ParseFlags()

	cfg, err := loadServiceConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	logger.WithFields(logrus.Fields{
		"version":   Version,
		"commit":    GitCommit,
		"buildDate": BuildDate,
	}).Info("Starting seqnet server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Artifact store and model registry
	store, err := storage.NewArtifactStore(&cfg.Storage, logger)
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

	// Metrics
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m, err = metrics.New(&cfg.Metrics, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create metrics collector")
		}
		go func() {
			if err := m.Start(ctx); err != nil {
				logger.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	// Job processor
	factory := datasets.NewFactory(logger)
	processor := training.NewProcessor(&cfg.Worker, factory, reg, m, logger)
	go func() {
		if err := processor.Start(ctx); err != nil {
			logger.WithError(err).Error("Job processor stopped with error")
		}
	}()

	// HTTP server
	cfg.Server.Version = Version
	handlers := server.NewHandlers(factory, processor, reg, logger, Version)
	srv, err := server.NewServer(&cfg.Server, handlers, m, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create HTTP server")
	}

	go func() {
		if err := srv.Start(ctx); err != nil {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	logger.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}

	// Let queued jobs drain before cancelling their context.
	processor.Stop()
	waitForJobs(shutdownCtx, processor, logger)
	cancel()

	if m != nil {
		if err := m.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Error("Metrics shutdown failed")
		}
	}

	logger.Info("Server stopped")
}

// waitForJobs blocks until no jobs are active or the shutdown deadline passes.
func waitForJobs(ctx context.Context, processor *training.Processor, logger *logrus.Logger) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.WithField("activeJobs", processor.ActiveJobs()).Warn("Shutdown timeout exceeded, abandoning jobs")
			return
		case <-ticker.C:
			if processor.ActiveJobs() == 0 {
				logger.Info("All jobs completed")
				return
			}
			logger.WithField("activeJobs", processor.ActiveJobs()).Info("Waiting for jobs to complete")
		}
	}
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
