package redis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/seqforge/seqnet/pkg/errors"
	"github.com/seqforge/seqnet/pkg/models"
)

// RedisConfig holds configuration for the Redis artifact store.
type RedisConfig struct {
	Addr          string        `json:"addr"`
	Password      string        `json:"password"`
	DB            int           `json:"db"`
	DialTimeout   time.Duration `json:"dial_timeout"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	PoolSize      int           `json:"pool_size"`
	MinIdleConns  int           `json:"min_idle_conns"`
	MaxRetries    int           `json:"max_retries"`
	TTL           time.Duration `json:"ttl"`
	KeyPrefix     string        `json:"key_prefix"`
	UseClustering bool          `json:"use_clustering"`
	ClusterAddrs  []string      `json:"cluster_addrs"`
}

// RedisStore implements interfaces.ArtifactStore on Redis. Artifacts are
// stored as string values, so the store suits short-lived snapshots such as
// checkpoints shared between workers rather than long-term archives. A
// nonzero TTL expires artifacts automatically.
type RedisStore struct {
	config *RedisConfig
	client redis.UniversalClient
	logger *logrus.Logger
	mu     sync.RWMutex
	closed bool
}

// NewRedisStore creates a new Redis artifact store.
func NewRedisStore(config *RedisConfig, logger *logrus.Logger) (*RedisStore, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidInput, "redis config cannot be nil")
	}
	if config.Addr == "" && len(config.ClusterAddrs) == 0 {
		return nil, errors.NewStorageError(errors.CodeMissingField,
			"redis address or cluster addresses are required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &RedisStore{
		config: config,
		logger: logger,
	}, nil
}

// Connect establishes the connection to Redis.
func (r *RedisStore) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return nil
	}

	var client redis.UniversalClient
	if r.config.UseClustering && len(r.config.ClusterAddrs) > 0 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        r.config.ClusterAddrs,
			Password:     r.config.Password,
			DialTimeout:  r.config.DialTimeout,
			ReadTimeout:  r.config.ReadTimeout,
			WriteTimeout: r.config.WriteTimeout,
			PoolSize:     r.config.PoolSize,
			MinIdleConns: r.config.MinIdleConns,
			MaxRetries:   r.config.MaxRetries,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         r.config.Addr,
			Password:     r.config.Password,
			DB:           r.config.DB,
			DialTimeout:  r.config.DialTimeout,
			ReadTimeout:  r.config.ReadTimeout,
			WriteTimeout: r.config.WriteTimeout,
			PoolSize:     r.config.PoolSize,
			MinIdleConns: r.config.MinIdleConns,
			MaxRetries:   r.config.MaxRetries,
		})
	}

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			"failed to connect to Redis")
	}

	r.client = client
	r.closed = false

	r.logger.WithFields(logrus.Fields{
		"addr":       r.config.Addr,
		"db":         r.config.DB,
		"clustering": r.config.UseClustering,
	}).Info("Connected to Redis")

	return nil
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	var err error
	if r.client != nil {
		err = r.client.Close()
		r.client = nil
	}
	r.closed = true

	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageError,
			"failed to close Redis connection")
	}

	r.logger.Info("Redis connection closed")
	return nil
}

// Ping tests the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkConnected(); err != nil {
		return err
	}

	if _, err := r.client.Ping(ctx).Result(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageError, "redis ping failed")
	}
	return nil
}

// Put stores the content read from r under key, applying the configured TTL.
func (r *RedisStore) Put(ctx context.Context, key string, reader io.Reader) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkConnected(); err != nil {
		return "", err
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("failed to read artifact %q", key))
	}

	storageKey := r.storageKey(key)
	if err := r.client.Set(ctx, storageKey, data, r.config.TTL).Err(); err != nil {
		return "", errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("failed to store artifact %q", key))
	}

	r.logger.WithFields(logrus.Fields{
		"key":   storageKey,
		"bytes": len(data),
	}).Debug("Stored artifact")

	return r.location(storageKey), nil
}

// Get retrieves the artifact stored under key.
func (r *RedisStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkConnected(); err != nil {
		return nil, err
	}

	data, err := r.client.Get(ctx, r.storageKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errors.NewStorageError(errors.CodeArtifactNotFound,
				fmt.Sprintf("artifact %q not found", key))
		}
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			fmt.Sprintf("failed to read artifact %q", key))
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the artifact stored under key. Deleting a missing key is
// not an error.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkConnected(); err != nil {
		return err
	}

	if err := r.client.Del(ctx, r.storageKey(key)).Err(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageError,
			fmt.Sprintf("failed to delete artifact %q", key))
	}
	return nil
}

// Exists reports whether an artifact is stored under key.
func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkConnected(); err != nil {
		return false, err
	}

	count, err := r.client.Exists(ctx, r.storageKey(key)).Result()
	if err != nil {
		return false, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			fmt.Sprintf("failed to check artifact %q", key))
	}
	return count > 0, nil
}

// List returns the keys stored under prefix. SCAN is used instead of KEYS so
// large keyspaces do not block the server.
func (r *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkConnected(); err != nil {
		return nil, err
	}

	pattern := r.storageKey(prefix) + "*"
	var keys []string

	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if key := r.stripPrefix(iter.Val()); key != "" {
			keys = append(keys, key)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			"failed to list artifacts")
	}
	return keys, nil
}

// GetInfo returns a description of the Redis store.
func (r *RedisStore) GetInfo(ctx context.Context) (*models.StorageInfo, error) {
	return &models.StorageInfo{
		Type:        "redis",
		Name:        "Redis Storage",
		Description: fmt.Sprintf("In-memory artifact store at %s", r.config.Addr),
	}, nil
}

func (r *RedisStore) checkConnected() error {
	if r.closed || r.client == nil {
		return errors.NewStorageError(errors.CodeConnectionFailed, "redis store not connected")
	}
	return nil
}

// storageKey maps an artifact key to the namespaced Redis key.
func (r *RedisStore) storageKey(key string) string {
	if r.config.KeyPrefix == "" {
		return key
	}
	if key == "" {
		return r.config.KeyPrefix + ":"
	}
	return r.config.KeyPrefix + ":" + key
}

// stripPrefix maps a Redis key back to an artifact key. Keys outside the
// configured namespace map to the empty string.
func (r *RedisStore) stripPrefix(storageKey string) string {
	if r.config.KeyPrefix == "" {
		return storageKey
	}
	base := r.config.KeyPrefix + ":"
	if !strings.HasPrefix(storageKey, base) {
		return ""
	}
	return strings.TrimPrefix(storageKey, base)
}

func (r *RedisStore) location(storageKey string) string {
	return fmt.Sprintf("redis://%s/%d/%s", r.config.Addr, r.config.DB, storageKey)
}
