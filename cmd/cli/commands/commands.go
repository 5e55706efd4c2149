// Package commands implements the CLI subcommands. Each command constructor
// returns a cobra command wired to an options struct.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/seqforge/seqnet/cmd/cli/config"
	"github.com/seqforge/seqnet/pkg/models"
)

var (
	cliConfig = config.Default()
	verbose   bool
)

// SetConfig installs the loaded CLI configuration for all commands.
func SetConfig(c *config.CLIConfig) {
	if c != nil {
		cliConfig = c
	}
}

// SetVerbose switches all commands to debug logging.
func SetVerbose(v bool) {
	verbose = v
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cliConfig.LogLevel)
	if err != nil {
		level = logrus.WarnLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

// openOutput opens the output target, with "-" or "" meaning the command's
// stdout. The returned close function is a no-op for stdout.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// parseParams parses repeated key=value parameter flags, converting values to
// the richest matching scalar type.
func parseParams(pairs []string) (map[string]interface{}, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		params[key] = parseParamValue(value)
	}
	return params, nil
}

func parseParamValue(raw string) interface{} {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

// mergeParams overlays explicit parameters on a configured preset.
func mergeParams(preset, explicit map[string]interface{}) map[string]interface{} {
	if len(preset) == 0 {
		return explicit
	}
	merged := make(map[string]interface{}, len(preset)+len(explicit))
	for k, v := range preset {
		merged[k] = v
	}
	for k, v := range explicit {
		merged[k] = v
	}
	return merged
}

// resolveDatasetSpec builds a dataset spec from a spec file or from the
// type/seed/parameter flags, applying any configured parameter preset.
func resolveDatasetSpec(specFile, datasetType, name string, seed int64, paramFlags []string) (*models.DatasetSpec, error) {
	if specFile != "" {
		return loadDatasetSpec(specFile)
	}

	params, err := parseParams(paramFlags)
	if err != nil {
		return nil, err
	}
	return &models.DatasetSpec{
		Type:       datasetType,
		Name:       name,
		Seed:       seed,
		Parameters: mergeParams(cliConfig.GeneratorParameters(datasetType), params),
	}, nil
}

func loadDatasetSpec(path string) (*models.DatasetSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}

	var spec models.DatasetSpec
	if strings.HasSuffix(path, ".json") {
		err = json.Unmarshal(data, &spec)
	} else {
		err = yaml.Unmarshal(data, &spec)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse spec file %q: %w", path, err)
	}
	if spec.Type == "" {
		return nil, fmt.Errorf("dataset spec %q has no type", path)
	}
	return &spec, nil
}
