// Package config loads the CLI configuration file, which supplies output
// defaults and per-generator parameter presets.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/seqforge/seqnet/pkg/constants"
)

type CLIConfig struct {
	DefaultOutput string               `mapstructure:"default_output"`
	DefaultFormat string               `mapstructure:"default_format"`
	LogLevel      string               `mapstructure:"log_level"`
	Generators    map[string]GenConfig `mapstructure:"generators"`
}

// GenConfig holds parameter presets applied under any parameters given on the
// command line.
type GenConfig struct {
	Parameters map[string]interface{} `mapstructure:"parameters"`
}

// Default returns the configuration used when no file is present.
func Default() *CLIConfig {
	return &CLIConfig{
		DefaultOutput: "-",
		DefaultFormat: "csv",
		LogLevel:      constants.LogLevelWarn,
	}
}

// Load reads the CLI configuration. With an empty cfgFile it looks for
// config.yaml under ~/.seqnet and silently falls back to the defaults when
// no file exists.
func Load(cfgFile string) (*CLIConfig, error) {
	config := Default()

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return config, nil
		}
		v.AddConfigPath(filepath.Join(home, "."+constants.AppName))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(constants.EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("default_output", config.DefaultOutput)
	v.SetDefault("default_format", config.DefaultFormat)
	v.SetDefault("log_level", config.LogLevel)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return config, nil
}

// GeneratorParameters returns the configured parameter preset for a dataset
// type, or nil when none is configured.
func (c *CLIConfig) GeneratorParameters(datasetType string) map[string]interface{} {
	if c == nil || c.Generators == nil {
		return nil
	}
	if gen, ok := c.Generators[datasetType]; ok {
		return gen.Parameters
	}
	return nil
}
