package file

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqforge/seqnet/pkg/errors"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := NewFileStore(&FileConfig{Directory: t.TempDir()}, logger)
	require.NoError(t, err)
	require.NoError(t, store.Connect(context.Background()))
	return store
}

func TestNewFileStoreInvalidConfig(t *testing.T) {
	_, err := NewFileStore(nil, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config cannot be nil")

	_, err = NewFileStore(&FileConfig{}, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory is required")
}

func TestFileStorePutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	location, err := store.Put(ctx, "models/demo/v1.json", strings.NewReader("snapshot-bytes"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.config.Directory, "models", "demo", "v1.json"), location)

	rc, err := store.Get(ctx, "models/demo/v1.json")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "snapshot-bytes", string(data))
}

func TestFileStorePutOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "a.bin", strings.NewReader("first"))
	require.NoError(t, err)
	_, err = store.Put(ctx, "a.bin", strings.NewReader("second"))
	require.NoError(t, err)

	rc, err := store.Get(ctx, "a.bin")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestFileStoreGetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "missing.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errors.CodeArtifactNotFound, appErr.Code)
}

func TestFileStoreExists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "x.json")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Put(ctx, "x.json", strings.NewReader("{}"))
	require.NoError(t, err)

	exists, err = store.Exists(ctx, "x.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFileStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "doomed.json", strings.NewReader("{}"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "doomed.json"))

	exists, err := store.Exists(ctx, "doomed.json")
	require.NoError(t, err)
	assert.False(t, exists)

	// Deleting a missing key is not an error.
	require.NoError(t, store.Delete(ctx, "doomed.json"))
}

func TestFileStoreList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{
		"models/a/v1.json",
		"models/a/v2.json",
		"models/b/v1.json",
		"datasets/train.csv",
	} {
		_, err := store.Put(ctx, key, strings.NewReader("content"))
		require.NoError(t, err)
	}

	keys, err := store.List(ctx, "models/a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"models/a/v1.json", "models/a/v2.json"}, keys)

	keys, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"datasets/train.csv",
		"models/a/v1.json",
		"models/a/v2.json",
		"models/b/v1.json",
	}, keys)

	keys, err = store.List(ctx, "nothing/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFileStoreRejectsEscapingKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "../outside.json", "a/../../outside.json", "/etc/passwd"} {
		_, err := store.Put(ctx, key, strings.NewReader("x"))
		require.Error(t, err, "key %q", key)

		var appErr *errors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, errors.CodeInvalidInput, appErr.Code)
	}

	// Dot segments that stay inside the root are fine.
	_, err := store.Put(ctx, "a/../b.json", strings.NewReader("x"))
	require.NoError(t, err)

	exists, err := store.Exists(ctx, "b.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFileStoreNotConnected(t *testing.T) {
	store, err := NewFileStore(&FileConfig{Directory: t.TempDir()}, logrus.New())
	require.NoError(t, err)

	ctx := context.Background()

	_, err = store.Put(ctx, "a.json", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")

	_, err = store.Get(ctx, "a.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")

	err = store.Ping(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestFileStoreConnectCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "store")
	store, err := NewFileStore(&FileConfig{Directory: dir}, logrus.New())
	require.NoError(t, err)

	require.NoError(t, store.Connect(context.Background()))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, store.Ping(context.Background()))
}

func TestFileStoreCloseIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	err := store.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestFileStoreFileMode(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := NewFileStore(&FileConfig{
		Directory: t.TempDir(),
		FileMode:  0o600,
	}, logger)
	require.NoError(t, err)
	require.NoError(t, store.Connect(context.Background()))

	location, err := store.Put(context.Background(), "secret.bin", strings.NewReader("x"))
	require.NoError(t, err)

	info, err := os.Stat(location)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStoreGetInfo(t *testing.T) {
	store := newTestStore(t)

	info, err := store.GetInfo(context.Background())
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "file", info.Type)
	assert.Equal(t, "Filesystem Storage", info.Name)
	assert.Contains(t, info.Description, store.config.Directory)
}

func TestFileStoreListSkipsTempFiles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "real.json", strings.NewReader("{}"))
	require.NoError(t, err)

	// A crashed writer can leave a temporary file behind.
	stale := filepath.Join(store.config.Directory, ".put-12345")
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0o644))

	keys, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"real.json"}, keys)
}
