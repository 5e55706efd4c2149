// Package storage provides artifact store backends for model snapshots and
// dataset exports, selected by configuration.
package storage

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/seqforge/seqnet/internal/storage/file"
	"github.com/seqforge/seqnet/internal/storage/redis"
	"github.com/seqforge/seqnet/internal/storage/s3"
	"github.com/seqforge/seqnet/pkg/constants"
	"github.com/seqforge/seqnet/pkg/errors"
	"github.com/seqforge/seqnet/pkg/interfaces"
)

// Config selects and configures an artifact store backend. Only the section
// matching Backend is consulted.
type Config struct {
	Backend string            `json:"backend" yaml:"backend" mapstructure:"backend"`
	File    file.FileConfig   `json:"file" yaml:"file" mapstructure:"file"`
	S3      s3.S3Config       `json:"s3" yaml:"s3" mapstructure:"s3"`
	Redis   redis.RedisConfig `json:"redis" yaml:"redis" mapstructure:"redis"`
}

// DefaultConfig returns a file-backed configuration rooted at dir.
func DefaultConfig(dir string) *Config {
	return &Config{
		Backend: constants.StorageBackendFile,
		File:    file.FileConfig{Directory: dir},
	}
}

// NewArtifactStore creates the artifact store selected by config. An empty
// backend defaults to the filesystem store.
func NewArtifactStore(config *Config, logger *logrus.Logger) (interfaces.ArtifactStore, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidInput, "storage config cannot be nil")
	}
	if logger == nil {
		logger = logrus.New()
	}

	backend := config.Backend
	if backend == "" {
		backend = constants.StorageBackendFile
	}

	var (
		store interfaces.ArtifactStore
		err   error
	)
	switch backend {
	case constants.StorageBackendFile:
		store, err = file.NewFileStore(&config.File, logger)
	case constants.StorageBackendS3:
		store, err = s3.NewS3Store(&config.S3, logger)
	case constants.StorageBackendRedis:
		store, err = redis.NewRedisStore(&config.Redis, logger)
	default:
		return nil, errors.NewStorageError(errors.CodeUnsupportedType,
			fmt.Sprintf("storage backend %q is not supported", backend))
	}
	if err != nil {
		return nil, err
	}

	logger.WithField("backend", backend).Debug("Created artifact store")
	return store, nil
}

// SupportedBackends returns the artifact store backends this build supports.
func SupportedBackends() []string {
	return []string{
		constants.StorageBackendFile,
		constants.StorageBackendS3,
		constants.StorageBackendRedis,
	}
}
