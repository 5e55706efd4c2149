package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqforge/seqnet/internal/storage/file"
	"github.com/seqforge/seqnet/internal/storage/redis"
	"github.com/seqforge/seqnet/internal/storage/s3"
	"github.com/seqforge/seqnet/pkg/constants"
	"github.com/seqforge/seqnet/pkg/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/var/lib/seqnet")

	assert.Equal(t, constants.StorageBackendFile, cfg.Backend)
	assert.Equal(t, "/var/lib/seqnet", cfg.File.Directory)
}

func TestNewArtifactStoreFile(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := NewArtifactStore(DefaultConfig(t.TempDir()), logger)
	require.NoError(t, err)
	require.NotNil(t, store)

	ctx := context.Background()
	require.NoError(t, store.Connect(ctx))
	defer store.Close()

	_, err = store.Put(ctx, "probe.json", strings.NewReader("{}"))
	require.NoError(t, err)

	exists, err := store.Exists(ctx, "probe.json")
	require.NoError(t, err)
	assert.True(t, exists)

	info, err := store.GetInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, constants.StorageBackendFile, info.Type)
}

func TestNewArtifactStoreEmptyBackendDefaultsToFile(t *testing.T) {
	store, err := NewArtifactStore(&Config{
		File: file.FileConfig{Directory: t.TempDir()},
	}, logrus.New())
	require.NoError(t, err)

	info, err := store.GetInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, constants.StorageBackendFile, info.Type)
}

func TestNewArtifactStoreS3(t *testing.T) {
	store, err := NewArtifactStore(&Config{
		Backend: constants.StorageBackendS3,
		S3: s3.S3Config{
			Region: "us-east-1",
			Bucket: "artifacts",
		},
	}, logrus.New())
	require.NoError(t, err)

	info, err := store.GetInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, constants.StorageBackendS3, info.Type)
}

func TestNewArtifactStoreRedis(t *testing.T) {
	store, err := NewArtifactStore(&Config{
		Backend: constants.StorageBackendRedis,
		Redis:   redis.RedisConfig{Addr: "localhost:6379"},
	}, logrus.New())
	require.NoError(t, err)

	info, err := store.GetInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, constants.StorageBackendRedis, info.Type)
}

func TestNewArtifactStoreUnsupportedBackend(t *testing.T) {
	_, err := NewArtifactStore(&Config{Backend: "ftp"}, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errors.CodeUnsupportedType, appErr.Code)
}

func TestNewArtifactStoreNilConfig(t *testing.T) {
	_, err := NewArtifactStore(nil, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config cannot be nil")
}

func TestNewArtifactStorePropagatesBackendErrors(t *testing.T) {
	// Backend config validation errors surface unchanged.
	_, err := NewArtifactStore(&Config{
		Backend: constants.StorageBackendS3,
	}, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket is required")

	_, err = NewArtifactStore(&Config{
		Backend: constants.StorageBackendRedis,
	}, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address or cluster addresses are required")
}

func TestSupportedBackends(t *testing.T) {
	backends := SupportedBackends()
	assert.ElementsMatch(t, []string{
		constants.StorageBackendFile,
		constants.StorageBackendS3,
		constants.StorageBackendRedis,
	}, backends)
}
