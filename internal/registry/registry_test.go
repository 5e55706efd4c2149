package registry

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqforge/seqnet/internal/nn"
	"github.com/seqforge/seqnet/internal/storage/file"
	"github.com/seqforge/seqnet/pkg/constants"
	"github.com/seqforge/seqnet/pkg/errors"
	"github.com/seqforge/seqnet/pkg/interfaces"
)

func newTestRegistry(t *testing.T) (*Registry, interfaces.ArtifactStore) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := file.NewFileStore(&file.FileConfig{Directory: t.TempDir()}, logger)
	require.NoError(t, err)
	require.NoError(t, store.Connect(context.Background()))

	reg, err := NewRegistry(store, logger)
	require.NoError(t, err)
	return reg, store
}

func buildRNN(seed int64) *nn.RNN {
	model := nn.NewRNN(5, false, nn.NewMeanSquaredError())
	model.Add(nn.NewLinear(1, 4))
	model.Add(nn.NewSigmoid())
	model.Add(nn.NewLinear(4, 1))
	model.SetSeed(seed)
	return model
}

func buildBRNN(seed int64) *nn.BRNN {
	model := nn.NewBRNN(4, false, nn.NewNegativeLogLikelihood())
	model.Add(nn.NewLinear(2, 8))
	model.Add(nn.NewSigmoid())
	model.Add(nn.NewLinear(8, 5))
	model.SetSeed(seed)
	return model
}

func TestNewRegistryRequiresStore(t *testing.T) {
	_, err := NewRegistry(nil, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires an artifact store")
}

func TestRegistryRegisterAndGet(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	info, err := reg.Register(ctx, "sine-forecaster", constants.ModelTypeRNN,
		"one step ahead sine prediction", map[string]string{"team": "forecasting"})
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "sine-forecaster", info.Name)
	assert.Equal(t, constants.ModelTypeRNN, info.Type)
	assert.False(t, info.CreatedAt.IsZero())

	got, err := reg.Get(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, info.Name, got.Name)
	assert.Equal(t, "forecasting", got.Tags["team"])
	assert.Empty(t, got.Versions)
}

func TestRegistryRegisterValidation(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Register(ctx, "", constants.ModelTypeRNN, "", nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeMissingField))

	_, err = reg.Register(ctx, "bad", "cnn", "", nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnsupportedType))
}

func TestRegistrySaveAndLoadRNN(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	info, err := reg.Register(ctx, "demo", constants.ModelTypeRNN, "", nil)
	require.NoError(t, err)

	model := buildRNN(17)
	want := model.Parameters()

	version, err := reg.SaveVersion(ctx, info.ID, constants.FormatJSON, model)
	require.NoError(t, err)
	require.NotNil(t, version)

	assert.NotEmpty(t, version.ID)
	assert.Equal(t, info.ID, version.ModelID)
	assert.Equal(t, constants.FormatJSON, version.Format)
	assert.Len(t, version.Checksum, 64)
	assert.Greater(t, version.SizeBytes, int64(0))
	assert.NotEmpty(t, version.Location)

	loaded, err := reg.LoadRNN(ctx, info.ID, version.ID)
	require.NoError(t, err)
	assert.Equal(t, want, loaded.Parameters())

	got, err := reg.Get(ctx, info.ID)
	require.NoError(t, err)
	require.Len(t, got.Versions, 1)
	assert.Equal(t, version.ID, got.Versions[0].ID)
}

func TestRegistrySaveVersionAllFormats(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	info, err := reg.Register(ctx, "multi-format", constants.ModelTypeRNN, "", nil)
	require.NoError(t, err)

	model := buildRNN(23)
	want := model.Parameters()

	for _, format := range []string{constants.FormatJSON, constants.FormatXML, constants.FormatBinary} {
		version, err := reg.SaveVersion(ctx, info.ID, format, model)
		require.NoError(t, err, "format %s", format)

		loaded, err := reg.LoadRNN(ctx, info.ID, version.ID)
		require.NoError(t, err, "format %s", format)
		assert.Equal(t, want, loaded.Parameters(), "format %s", format)
	}

	got, err := reg.Get(ctx, info.ID)
	require.NoError(t, err)
	assert.Len(t, got.Versions, 3)
}

func TestRegistryLoadLatestVersion(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	info, err := reg.Register(ctx, "latest", constants.ModelTypeRNN, "", nil)
	require.NoError(t, err)

	first := buildRNN(1)
	_, err = reg.SaveVersion(ctx, info.ID, constants.FormatJSON, first)
	require.NoError(t, err)

	second := buildRNN(2)
	_, err = reg.SaveVersion(ctx, info.ID, constants.FormatBinary, second)
	require.NoError(t, err)

	loaded, err := reg.LoadRNN(ctx, info.ID, "")
	require.NoError(t, err)
	assert.Equal(t, second.Parameters(), loaded.Parameters())
	assert.NotEqual(t, first.Parameters(), loaded.Parameters())
}

func TestRegistrySaveVersionUnknownModel(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.SaveVersion(context.Background(), "no-such-id", constants.FormatJSON, buildRNN(3))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeModelNotFound))
}

func TestRegistrySaveVersionNilModel(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.SaveVersion(context.Background(), "irrelevant", constants.FormatJSON, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
}

func TestRegistryLoadMissingVersions(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.LoadRNN(ctx, "no-such-model", "")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeModelNotFound))

	info, err := reg.Register(ctx, "empty", constants.ModelTypeRNN, "", nil)
	require.NoError(t, err)

	_, err = reg.LoadRNN(ctx, info.ID, "")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeVersionNotFound))

	_, err = reg.LoadRNN(ctx, info.ID, "bogus-version")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeVersionNotFound))
}

func TestRegistryChecksumMismatch(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()

	info, err := reg.Register(ctx, "tampered", constants.ModelTypeRNN, "", nil)
	require.NoError(t, err)

	version, err := reg.SaveVersion(ctx, info.ID, constants.FormatJSON, buildRNN(7))
	require.NoError(t, err)

	// Overwrite the stored artifact behind the registry's back.
	key := versionKey(info.ID, version.ID, version.Format)
	_, err = store.Put(ctx, key, strings.NewReader(`{"tampered":true}`))
	require.NoError(t, err)

	_, err = reg.LoadRNN(ctx, info.ID, version.ID)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeSnapshotCorrupt))
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestRegistryBRNNRoundTrip(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	info, err := reg.Register(ctx, "bidirectional", constants.ModelTypeBRNN, "", nil)
	require.NoError(t, err)

	model := buildBRNN(31)
	want := model.Parameters()

	version, err := reg.SaveVersion(ctx, info.ID, constants.FormatBinary, model)
	require.NoError(t, err)

	loaded, err := reg.LoadBRNN(ctx, info.ID, version.ID)
	require.NoError(t, err)
	assert.Equal(t, want, loaded.Parameters())

	// Loading a bidirectional snapshot as a plain RNN is rejected.
	_, err = reg.LoadRNN(ctx, info.ID, version.ID)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeSnapshotCorrupt))
}

func TestRegistryList(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	names := []string{"alpha", "beta", "gamma"}
	for _, name := range names {
		_, err := reg.Register(ctx, name, constants.ModelTypeRNN, "", nil)
		require.NoError(t, err)
	}

	infos, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 3)

	var gotNames []string
	var last time.Time
	for _, info := range infos {
		gotNames = append(gotNames, info.Name)
		assert.False(t, info.CreatedAt.Before(last), "list not ordered by creation time")
		last = info.CreatedAt
	}
	assert.ElementsMatch(t, names, gotNames)
}

func TestRegistryListEmpty(t *testing.T) {
	reg, _ := newTestRegistry(t)

	infos, err := reg.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestRegistryDelete(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()

	keep, err := reg.Register(ctx, "keep", constants.ModelTypeRNN, "", nil)
	require.NoError(t, err)

	doomed, err := reg.Register(ctx, "doomed", constants.ModelTypeRNN, "", nil)
	require.NoError(t, err)
	_, err = reg.SaveVersion(ctx, doomed.ID, constants.FormatJSON, buildRNN(5))
	require.NoError(t, err)
	_, err = reg.SaveVersion(ctx, doomed.ID, constants.FormatBinary, buildRNN(6))
	require.NoError(t, err)

	require.NoError(t, reg.Delete(ctx, doomed.ID))

	_, err = reg.Get(ctx, doomed.ID)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeModelNotFound))

	// The snapshot artifacts are gone with the entry.
	keys, err := store.List(ctx, "registry/models/"+doomed.ID+"/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	// Other models are untouched.
	_, err = reg.Get(ctx, keep.ID)
	require.NoError(t, err)
}

func TestRegistryDeleteUnknown(t *testing.T) {
	reg, _ := newTestRegistry(t)

	err := reg.Delete(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeModelNotFound))
}

func TestRegistryPersistsAcrossInstances(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dir := t.TempDir()
	ctx := context.Background()

	store, err := file.NewFileStore(&file.FileConfig{Directory: dir}, logger)
	require.NoError(t, err)
	require.NoError(t, store.Connect(ctx))

	reg, err := NewRegistry(store, logger)
	require.NoError(t, err)

	info, err := reg.Register(ctx, "durable", constants.ModelTypeRNN, "", nil)
	require.NoError(t, err)

	model := buildRNN(11)
	version, err := reg.SaveVersion(ctx, info.ID, constants.FormatXML, model)
	require.NoError(t, err)

	// A second registry over the same store sees the persisted index.
	store2, err := file.NewFileStore(&file.FileConfig{Directory: dir}, logger)
	require.NoError(t, err)
	require.NoError(t, store2.Connect(ctx))

	reg2, err := NewRegistry(store2, logger)
	require.NoError(t, err)

	got, err := reg2.Get(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, "durable", got.Name)
	require.Len(t, got.Versions, 1)

	loaded, err := reg2.LoadRNN(ctx, info.ID, version.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Parameters(), loaded.Parameters())
}
