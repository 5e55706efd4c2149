package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/seqforge/seqnet/pkg/constants"
)

type Flags struct {
	Host           string
	Port           int
	ConfigFile     string
	LogLevel       string
	LogFormat      string
	MetricsPort    int
	EnableMetrics  bool
	EnableCORS     bool
	StorageBackend string
	StorageDir     string
	Concurrency    int
	QueueSize      int
	Version        bool
}

func ParseFlags() *Flags {
	flags := &Flags{}

	flag.StringVar(&flags.Host, "host", constants.DefaultHost, "Server host")
	flag.IntVar(&flags.Port, "port", constants.DefaultPort, "Server port")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to configuration file")
	flag.StringVar(&flags.LogLevel, "log-level", constants.DefaultLogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&flags.LogFormat, "log-format", constants.DefaultLogFormat, "Log format (json, text)")
	flag.IntVar(&flags.MetricsPort, "metrics-port", constants.DefaultMetricsPort, "Prometheus metrics port")
	flag.BoolVar(&flags.EnableMetrics, "enable-metrics", true, "Enable Prometheus metrics")
	flag.BoolVar(&flags.EnableCORS, "enable-cors", true, "Enable CORS headers")
	flag.StringVar(&flags.StorageBackend, "storage", constants.StorageBackendFile, "Artifact store backend (file, s3, redis)")
	flag.StringVar(&flags.StorageDir, "storage-dir", "data", "Directory for the file artifact store")
	flag.IntVar(&flags.Concurrency, "concurrency", constants.DefaultWorkerConcurrency, "Number of concurrent training jobs")
	flag.IntVar(&flags.QueueSize, "queue-size", constants.DefaultQueueSize, "Job queue capacity")
	flag.BoolVar(&flags.Version, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n%s\n\n", constants.AppDescription)
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if flags.Version {
		info := GetBuildInfo()
		fmt.Printf("Version: %s\n", info.Version)
		fmt.Printf("Git Commit: %s\n", info.GitCommit)
		fmt.Printf("Build Date: %s\n", info.BuildDate)
		fmt.Printf("Go Version: %s\n", info.GoVersion)
		fmt.Printf("Platform: %s\n", info.Platform)
		os.Exit(0)
	}

	return flags
}

// visitSetFlags calls fn for every flag the user set explicitly, which lets
// command line values override the configuration file.
func visitSetFlags(fn func(name string)) {
	flag.Visit(func(f *flag.Flag) { fn(f.Name) })
}
