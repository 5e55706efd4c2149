package redis

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqforge/seqnet/pkg/errors"
)

func TestNewRedisStore(t *testing.T) {
	config := &RedisConfig{
		Addr: "localhost:6379",
	}

	logger := logrus.New()
	store, err := NewRedisStore(config, logger)

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, config, store.config)
	assert.Equal(t, logger, store.logger)
}

func TestNewRedisStoreInvalidConfig(t *testing.T) {
	_, err := NewRedisStore(nil, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config cannot be nil")

	_, err = NewRedisStore(&RedisConfig{}, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address or cluster addresses are required")
}

func TestNewRedisStoreClusterAddrs(t *testing.T) {
	// A cluster-only configuration is valid without a single address.
	store, err := NewRedisStore(&RedisConfig{
		UseClustering: true,
		ClusterAddrs:  []string{"node-1:6379", "node-2:6379"},
	}, logrus.New())
	require.NoError(t, err)
	require.NotNil(t, store)
}

func TestRedisStoreStorageKey(t *testing.T) {
	store, err := NewRedisStore(&RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "seqnet",
	}, logrus.New())
	require.NoError(t, err)

	assert.Equal(t, "seqnet:models/demo/v1.json", store.storageKey("models/demo/v1.json"))
	assert.Equal(t, "seqnet:", store.storageKey(""))
}

func TestRedisStoreStorageKeyNoPrefix(t *testing.T) {
	store, err := NewRedisStore(&RedisConfig{Addr: "localhost:6379"}, logrus.New())
	require.NoError(t, err)

	assert.Equal(t, "models/demo/v1.json", store.storageKey("models/demo/v1.json"))
}

func TestRedisStoreStripPrefix(t *testing.T) {
	store, err := NewRedisStore(&RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "seqnet",
	}, logrus.New())
	require.NoError(t, err)

	assert.Equal(t, "models/demo/v1.json", store.stripPrefix("seqnet:models/demo/v1.json"))
	assert.Equal(t, "", store.stripPrefix("other:models/demo/v1.json"))
}

func TestRedisStoreLocation(t *testing.T) {
	store, err := NewRedisStore(&RedisConfig{
		Addr:      "cache:6379",
		DB:        2,
		KeyPrefix: "seqnet",
	}, logrus.New())
	require.NoError(t, err)

	assert.Equal(t, "redis://cache:6379/2/seqnet:a.json", store.location(store.storageKey("a.json")))
}

func TestRedisStoreGetInfo(t *testing.T) {
	store, err := NewRedisStore(&RedisConfig{Addr: "localhost:6379"}, logrus.New())
	require.NoError(t, err)

	info, err := store.GetInfo(context.Background())
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "redis", info.Type)
	assert.Equal(t, "Redis Storage", info.Name)
	assert.Contains(t, info.Description, "localhost:6379")
}

func TestRedisStoreNotConnected(t *testing.T) {
	store, err := NewRedisStore(&RedisConfig{Addr: "localhost:6379"}, logrus.New())
	require.NoError(t, err)

	ctx := context.Background()

	_, err = store.Put(ctx, "a.json", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")

	_, err = store.Get(ctx, "a.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")

	err = store.Delete(ctx, "a.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")

	_, err = store.Exists(ctx, "a.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errors.CodeConnectionFailed, appErr.Code)
}

// The following tests need a running Redis instance.

func TestRedisStoreIntegration(t *testing.T) {
	t.Skip("Integration test - requires a running Redis instance")

	config := &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "seqnet-test",
		TTL:       time.Minute,
	}

	store, err := NewRedisStore(config, logrus.New())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Connect(ctx))
	defer store.Close()

	require.NoError(t, store.Ping(ctx))

	location, err := store.Put(ctx, "models/demo/v1.json", strings.NewReader("snapshot-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0/seqnet-test:models/demo/v1.json", location)

	exists, err := store.Exists(ctx, "models/demo/v1.json")
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := store.Get(ctx, "models/demo/v1.json")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "snapshot-bytes", string(data))

	keys, err := store.List(ctx, "models/")
	require.NoError(t, err)
	assert.Contains(t, keys, "models/demo/v1.json")

	require.NoError(t, store.Delete(ctx, "models/demo/v1.json"))

	_, err = store.Get(ctx, "models/demo/v1.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRedisStoreTTLIntegration(t *testing.T) {
	t.Skip("Integration test - requires a running Redis instance")

	config := &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "seqnet-ttl-test",
		TTL:       time.Second,
	}

	store, err := NewRedisStore(config, logrus.New())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Connect(ctx))
	defer store.Close()

	_, err = store.Put(ctx, "ephemeral.bin", strings.NewReader("x"))
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	exists, err := store.Exists(ctx, "ephemeral.bin")
	require.NoError(t, err)
	assert.False(t, exists)
}
