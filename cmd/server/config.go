package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/seqforge/seqnet/internal/observability/metrics"
	"github.com/seqforge/seqnet/internal/server"
	"github.com/seqforge/seqnet/internal/storage"
	"github.com/seqforge/seqnet/internal/training"
	"github.com/seqforge/seqnet/pkg/constants"
)

// serviceConfig is the full configuration of the server binary, loadable from
// a YAML file with SEQNET_ environment variable overrides.
type serviceConfig struct {
	LogLevel  string          `mapstructure:"log_level"`
	LogFormat string          `mapstructure:"log_format"`
	Server    server.Config   `mapstructure:"server"`
	Worker    training.Config `mapstructure:"worker"`
	Metrics   metrics.Config  `mapstructure:"metrics"`
	Storage   storage.Config  `mapstructure:"storage"`
}

func defaultServiceConfig() *serviceConfig {
	return &serviceConfig{
		LogLevel:  constants.DefaultLogLevel,
		LogFormat: constants.DefaultLogFormat,
		Server:    *server.DefaultConfig(),
		Worker:    *training.DefaultConfig(),
		Metrics:   *metrics.DefaultConfig(),
		Storage:   *storage.DefaultConfig("data"),
	}
}

// loadServiceConfig reads the configuration file when one is given and then
// applies any explicitly set command line flags on top.
func loadServiceConfig(flags *Flags) (*serviceConfig, error) {
	cfg := defaultServiceConfig()

	if flags.ConfigFile != "" {
		v := viper.New()
		v.SetConfigFile(flags.ConfigFile)
		v.SetEnvPrefix(constants.EnvPrefix)
		v.AutomaticEnv()

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", flags.ConfigFile, err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", flags.ConfigFile, err)
		}
	}

	visitSetFlags(func(name string) {
		switch name {
		case "host":
			cfg.Server.Host = flags.Host
		case "port":
			cfg.Server.Port = flags.Port
		case "log-level":
			cfg.LogLevel = flags.LogLevel
		case "log-format":
			cfg.LogFormat = flags.LogFormat
		case "metrics-port":
			cfg.Metrics.Port = flags.MetricsPort
		case "enable-metrics":
			cfg.Metrics.Enabled = flags.EnableMetrics
			cfg.Server.EnableMetrics = flags.EnableMetrics
		case "enable-cors":
			cfg.Server.EnableCORS = flags.EnableCORS
		case "storage":
			cfg.Storage.Backend = flags.StorageBackend
		case "storage-dir":
			cfg.Storage.File.Directory = flags.StorageDir
		case "concurrency":
			cfg.Worker.Concurrency = flags.Concurrency
		case "queue-size":
			cfg.Worker.QueueSize = flags.QueueSize
		}
	})

	return cfg, nil
}
