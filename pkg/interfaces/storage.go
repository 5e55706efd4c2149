package interfaces

import (
	"context"
	"io"

	"github.com/seqforge/seqnet/pkg/models"
)

// ArtifactStore defines the interface for storing model snapshots and
// dataset exports. Keys are slash-separated paths relative to the store root.
type ArtifactStore interface {
	// Connect establishes the connection to the backend.
	Connect(ctx context.Context) error

	// Close closes the connection to the backend.
	Close() error

	// Ping tests connectivity.
	Ping(ctx context.Context) error

	// Put stores the content read from r under key and returns the backend
	// specific location of the stored artifact.
	Put(ctx context.Context, key string, r io.Reader) (string, error)

	// Get retrieves the artifact stored under key. The caller must close the
	// returned reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the artifact stored under key.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an artifact is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns the keys stored under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// GetInfo returns a description of the backend.
	GetInfo(ctx context.Context) (*models.StorageInfo, error)
}
