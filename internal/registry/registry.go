// Package registry tracks trained models and their stored snapshot versions.
// Model metadata lives in a single JSON index document inside the artifact
// store, next to the snapshot artifacts themselves, so any configured backend
// carries the registry without extra infrastructure.
package registry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/seqforge/seqnet/internal/nn"
	"github.com/seqforge/seqnet/pkg/constants"
	"github.com/seqforge/seqnet/pkg/errors"
	"github.com/seqforge/seqnet/pkg/interfaces"
	"github.com/seqforge/seqnet/pkg/models"
)

const indexKey = "registry/index.json"

// Snapshotter is the save side of nn.RNN and nn.BRNN.
type Snapshotter interface {
	Save(w io.Writer, format string) error
}

// Registry stores model metadata and versioned snapshots through an
// artifact store.
type Registry struct {
	store  interfaces.ArtifactStore
	logger *logrus.Logger
	mu     sync.Mutex
}

type indexDocument struct {
	Models    map[string]*models.ModelInfo `json:"models"`
	UpdatedAt time.Time                    `json:"updated_at"`
}

// NewRegistry creates a registry backed by the given artifact store. The
// store must be connected before registry operations are used.
func NewRegistry(store interfaces.ArtifactStore, logger *logrus.Logger) (*Registry, error) {
	if store == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidInput, "registry requires an artifact store")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		store:  store,
		logger: logger,
	}, nil
}

// Register adds a new model entry and returns it with a generated ID.
func (r *Registry) Register(ctx context.Context, name, modelType, description string, tags map[string]string) (*models.ModelInfo, error) {
	if name == "" {
		return nil, errors.NewValidationError(errors.CodeMissingField, "model name is required")
	}
	if modelType != constants.ModelTypeRNN && modelType != constants.ModelTypeBRNN {
		return nil, errors.NewValidationError(errors.CodeUnsupportedType,
			fmt.Sprintf("model type %q is not supported", modelType))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	info := &models.ModelInfo{
		ID:          uuid.New().String(),
		Name:        name,
		Type:        modelType,
		Description: description,
		Tags:        tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	idx.Models[info.ID] = info

	if err := r.saveIndex(ctx, idx); err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"model_id": info.ID,
		"name":     name,
		"type":     modelType,
	}).Info("Registered model")

	return cloneInfo(info), nil
}

// SaveVersion serializes model in the given snapshot format, stores the
// artifact and records a new version with its sha256 checksum.
func (r *Registry) SaveVersion(ctx context.Context, modelID, format string, model Snapshotter) (*models.ModelVersion, error) {
	if model == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "model cannot be nil")
	}

	var buf bytes.Buffer
	if err := model.Save(&buf, format); err != nil {
		return nil, err
	}
	sum := sha256.Sum256(buf.Bytes())

	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	info, ok := idx.Models[modelID]
	if !ok {
		return nil, errors.NewStorageError(errors.CodeModelNotFound,
			fmt.Sprintf("model %q not found", modelID))
	}

	version := models.ModelVersion{
		ID:        uuid.New().String(),
		ModelID:   modelID,
		Format:    format,
		Checksum:  hex.EncodeToString(sum[:]),
		SizeBytes: int64(buf.Len()),
		CreatedAt: time.Now().UTC(),
	}

	location, err := r.store.Put(ctx, versionKey(modelID, version.ID, format), bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, err
	}
	version.Location = location

	info.Versions = append(info.Versions, version)
	info.UpdatedAt = version.CreatedAt

	if err := r.saveIndex(ctx, idx); err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"model_id":   modelID,
		"version_id": version.ID,
		"format":     format,
		"bytes":      version.SizeBytes,
	}).Info("Saved model version")

	out := version
	return &out, nil
}

// LoadRNN restores the RNN stored under modelID. An empty versionID selects
// the most recent version.
func (r *Registry) LoadRNN(ctx context.Context, modelID, versionID string) (*nn.RNN, error) {
	version, data, err := r.fetchVersion(ctx, modelID, versionID)
	if err != nil {
		return nil, err
	}
	return nn.LoadRNN(bytes.NewReader(data), version.Format)
}

// LoadBRNN restores the BRNN stored under modelID. An empty versionID
// selects the most recent version.
func (r *Registry) LoadBRNN(ctx context.Context, modelID, versionID string) (*nn.BRNN, error) {
	version, data, err := r.fetchVersion(ctx, modelID, versionID)
	if err != nil {
		return nil, err
	}
	return nn.LoadBRNN(bytes.NewReader(data), version.Format)
}

// Get returns the model entry stored under modelID.
func (r *Registry) Get(ctx context.Context, modelID string) (*models.ModelInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	info, ok := idx.Models[modelID]
	if !ok {
		return nil, errors.NewStorageError(errors.CodeModelNotFound,
			fmt.Sprintf("model %q not found", modelID))
	}
	return cloneInfo(info), nil
}

// List returns all registered models sorted by creation time, oldest first.
func (r *Registry) List(ctx context.Context) ([]*models.ModelInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]*models.ModelInfo, 0, len(idx.Models))
	for _, info := range idx.Models {
		infos = append(infos, cloneInfo(info))
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos, nil
}

// Delete removes a model entry together with all its stored snapshots.
func (r *Registry) Delete(ctx context.Context, modelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.loadIndex(ctx)
	if err != nil {
		return err
	}
	info, ok := idx.Models[modelID]
	if !ok {
		return errors.NewStorageError(errors.CodeModelNotFound,
			fmt.Sprintf("model %q not found", modelID))
	}

	for _, version := range info.Versions {
		if err := r.store.Delete(ctx, versionKey(modelID, version.ID, version.Format)); err != nil {
			return err
		}
	}
	delete(idx.Models, modelID)

	if err := r.saveIndex(ctx, idx); err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"model_id": modelID,
		"versions": len(info.Versions),
	}).Info("Deleted model")

	return nil
}

// fetchVersion resolves the requested version, downloads its artifact and
// verifies the checksum recorded at save time.
func (r *Registry) fetchVersion(ctx context.Context, modelID, versionID string) (*models.ModelVersion, []byte, error) {
	r.mu.Lock()
	idx, err := r.loadIndex(ctx)
	if err != nil {
		r.mu.Unlock()
		return nil, nil, err
	}
	info, ok := idx.Models[modelID]
	if !ok {
		r.mu.Unlock()
		return nil, nil, errors.NewStorageError(errors.CodeModelNotFound,
			fmt.Sprintf("model %q not found", modelID))
	}

	var version *models.ModelVersion
	if versionID == "" {
		if len(info.Versions) == 0 {
			r.mu.Unlock()
			return nil, nil, errors.NewStorageError(errors.CodeVersionNotFound,
				fmt.Sprintf("model %q has no stored versions", modelID))
		}
		v := info.Versions[len(info.Versions)-1]
		version = &v
	} else {
		for i := range info.Versions {
			if info.Versions[i].ID == versionID {
				v := info.Versions[i]
				version = &v
				break
			}
		}
		if version == nil {
			r.mu.Unlock()
			return nil, nil, errors.NewStorageError(errors.CodeVersionNotFound,
				fmt.Sprintf("version %q of model %q not found", versionID, modelID))
		}
	}
	r.mu.Unlock()

	rc, err := r.store.Get(ctx, versionKey(modelID, version.ID, version.Format))
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			fmt.Sprintf("failed to read snapshot for version %q", version.ID))
	}

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != version.Checksum {
		return nil, nil, errors.NewSerializationError(errors.CodeSnapshotCorrupt,
			fmt.Sprintf("checksum mismatch for version %q of model %q", version.ID, modelID))
	}
	return version, data, nil
}

// loadIndex reads the index document, returning an empty index when none
// has been written yet. Callers must hold r.mu.
func (r *Registry) loadIndex(ctx context.Context) (*indexDocument, error) {
	rc, err := r.store.Get(ctx, indexKey)
	if err != nil {
		if errors.HasCode(err, errors.CodeArtifactNotFound) {
			return &indexDocument{Models: make(map[string]*models.ModelInfo)}, nil
		}
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			"failed to read registry index")
	}

	var idx indexDocument
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeSerialization, errors.CodeDecodeFailed,
			"failed to decode registry index")
	}
	if idx.Models == nil {
		idx.Models = make(map[string]*models.ModelInfo)
	}
	return &idx, nil
}

// saveIndex writes the index document. Callers must hold r.mu.
func (r *Registry) saveIndex(ctx context.Context, idx *indexDocument) error {
	idx.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeSerialization, errors.CodeEncodeFailed,
			"failed to encode registry index")
	}
	if _, err := r.store.Put(ctx, indexKey, bytes.NewReader(data)); err != nil {
		return err
	}
	return nil
}

// versionKey maps a version to its artifact key inside the store.
func versionKey(modelID, versionID, format string) string {
	return fmt.Sprintf("registry/models/%s/%s.%s", modelID, versionID, formatExtension(format))
}

func formatExtension(format string) string {
	switch format {
	case constants.FormatJSON:
		return "json"
	case constants.FormatXML:
		return "xml"
	case constants.FormatBinary:
		return "bin"
	default:
		return format
	}
}

func cloneInfo(info *models.ModelInfo) *models.ModelInfo {
	out := *info
	if info.Versions != nil {
		out.Versions = append([]models.ModelVersion(nil), info.Versions...)
	}
	if info.Tags != nil {
		out.Tags = make(map[string]string, len(info.Tags))
		for k, v := range info.Tags {
			out.Tags[k] = v
		}
	}
	return &out
}
