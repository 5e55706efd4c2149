package server

import (
	"fmt"
	"time"

	"github.com/seqforge/seqnet/pkg/constants"
	"github.com/seqforge/seqnet/pkg/errors"
)

// Config contains the HTTP service settings.
type Config struct {
	Host            string        `json:"host" yaml:"host" mapstructure:"host"`
	Port            int           `json:"port" yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	EnableCORS      bool          `json:"enable_cors" yaml:"enable_cors" mapstructure:"enable_cors"`
	EnableMetrics   bool          `json:"enable_metrics" yaml:"enable_metrics" mapstructure:"enable_metrics"`
	Version         string        `json:"version,omitempty" yaml:"version,omitempty" mapstructure:"version"`
}

// DefaultConfig returns the default service settings.
func DefaultConfig() *Config {
	return &Config{
		Host:            constants.DefaultHost,
		Port:            constants.DefaultPort,
		ReadTimeout:     constants.DefaultReadTimeout,
		WriteTimeout:    constants.DefaultWriteTimeout,
		IdleTimeout:     constants.DefaultIdleTimeout,
		ShutdownTimeout: constants.DefaultShutdownTimeout,
		EnableCORS:      true,
		EnableMetrics:   true,
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.NewValidationError(errors.CodeOutOfRange,
			fmt.Sprintf("invalid port: %d", c.Port))
	}
	if c.ReadTimeout <= 0 {
		return errors.NewValidationError(errors.CodeOutOfRange,
			"read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return errors.NewValidationError(errors.CodeOutOfRange,
			"write timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.NewValidationError(errors.CodeOutOfRange,
			"shutdown timeout must be positive")
	}
	return nil
}

// Address returns the host:port address the server binds.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
