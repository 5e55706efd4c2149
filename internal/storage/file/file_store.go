package file

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/seqforge/seqnet/pkg/errors"
	"github.com/seqforge/seqnet/pkg/models"
)

// FileConfig holds configuration for the filesystem artifact store.
type FileConfig struct {
	// Directory is the root under which all artifacts are stored.
	Directory string `json:"directory"`

	// FileMode is the permission mode for created files. Zero means 0o644.
	FileMode os.FileMode `json:"file_mode,omitempty"`
}

// FileStore implements interfaces.ArtifactStore on the local filesystem.
// Keys map to paths below the configured root directory, so artifacts
// remain inspectable with ordinary shell tools.
type FileStore struct {
	config    *FileConfig
	logger    *logrus.Logger
	mu        sync.RWMutex
	connected bool
	closed    bool
}

// NewFileStore creates a new filesystem artifact store.
func NewFileStore(config *FileConfig, logger *logrus.Logger) (*FileStore, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidInput, "file store config cannot be nil")
	}
	if config.Directory == "" {
		return nil, errors.NewStorageError(errors.CodeMissingField, "file store directory is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &FileStore{
		config: config,
		logger: logger,
	}, nil
}

// Connect creates the root directory if it does not exist.
func (f *FileStore) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.connected {
		return nil
	}

	if err := os.MkdirAll(f.config.Directory, 0o755); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			fmt.Sprintf("failed to create store directory %q", f.config.Directory))
	}

	f.connected = true
	f.closed = false

	f.logger.WithField("directory", f.config.Directory).Info("Connected to file store")
	return nil
}

// Close marks the store closed. It holds no OS resources between operations.
func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.connected = false
	f.closed = true

	f.logger.Info("File store closed")
	return nil
}

// Ping verifies the root directory is still accessible.
func (f *FileStore) Ping(ctx context.Context) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.checkConnected(); err != nil {
		return err
	}

	info, err := os.Stat(f.config.Directory)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageError, "file store ping failed")
	}
	if !info.IsDir() {
		return errors.NewStorageError(errors.CodeStorageError,
			fmt.Sprintf("store path %q is not a directory", f.config.Directory))
	}
	return nil
}

// Put writes the content read from r to the path derived from key. The write
// goes through a temporary file and a rename so readers never observe a
// partially written artifact.
func (f *FileStore) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.checkConnected(); err != nil {
		return "", err
	}
	target, err := f.resolve(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "put cancelled")
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("failed to create directory for key %q", key))
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".put-*")
	if err != nil {
		return "", errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("failed to create temporary file for key %q", key))
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return "", errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("failed to write artifact %q", key))
	}

	if err := os.Chmod(tmpName, f.fileMode()); err != nil {
		os.Remove(tmpName)
		return "", errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("failed to set mode on artifact %q", key))
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("failed to store artifact %q", key))
	}

	f.logger.WithFields(logrus.Fields{
		"key":   key,
		"bytes": written,
	}).Debug("Stored artifact")

	return target, nil
}

// Get opens the artifact stored under key.
func (f *FileStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.checkConnected(); err != nil {
		return nil, err
	}
	target, err := f.resolve(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewStorageError(errors.CodeArtifactNotFound,
				fmt.Sprintf("artifact %q not found", key))
		}
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			fmt.Sprintf("failed to open artifact %q", key))
	}
	return file, nil
}

// Delete removes the artifact stored under key. Deleting a missing key is
// not an error, matching object store semantics.
func (f *FileStore) Delete(ctx context.Context, key string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.checkConnected(); err != nil {
		return err
	}
	target, err := f.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageError,
			fmt.Sprintf("failed to delete artifact %q", key))
	}
	return nil
}

// Exists reports whether an artifact is stored under key.
func (f *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.checkConnected(); err != nil {
		return false, err
	}
	target, err := f.resolve(key)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			fmt.Sprintf("failed to stat artifact %q", key))
	}
	return !info.IsDir(), nil
}

// List returns the keys stored under prefix, sorted lexicographically.
func (f *FileStore) List(ctx context.Context, prefix string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.checkConnected(); err != nil {
		return nil, err
	}
	if prefix != "" {
		if _, err := f.resolve(prefix); err != nil {
			return nil, err
		}
	}

	var keys []string
	err := filepath.WalkDir(f.config.Directory, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(f.config.Directory, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "failed to list artifacts")
	}

	sort.Strings(keys)
	return keys, nil
}

// GetInfo returns a description of the file store.
func (f *FileStore) GetInfo(ctx context.Context) (*models.StorageInfo, error) {
	return &models.StorageInfo{
		Type:        "file",
		Name:        "Filesystem Storage",
		Description: fmt.Sprintf("Local filesystem artifact store rooted at %s", f.config.Directory),
	}, nil
}

func (f *FileStore) checkConnected() error {
	if f.closed || !f.connected {
		return errors.NewStorageError(errors.CodeConnectionFailed, "file store not connected")
	}
	return nil
}

// resolve maps a key to an absolute path below the root, rejecting keys
// that would escape it.
func (f *FileStore) resolve(key string) (string, error) {
	if key == "" {
		return "", errors.NewStorageError(errors.CodeInvalidInput, "artifact key cannot be empty")
	}
	cleaned := path.Clean(key)
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.NewStorageError(errors.CodeInvalidInput,
			fmt.Sprintf("artifact key %q escapes the store root", key))
	}
	return filepath.Join(f.config.Directory, filepath.FromSlash(cleaned)), nil
}

func (f *FileStore) fileMode() os.FileMode {
	if f.config.FileMode != 0 {
		return f.config.FileMode
	}
	return 0o644
}
